// Package audio provides microphone capture and local playback plumbing for
// the terminal client.
package audio

import (
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"parley/internal/chat"
)

const (
	// SampleRate is the capture rate expected by the STT backends.
	SampleRate = 16000
	// Channels is mono capture.
	Channels = 1
	// FramesPerBuffer is the portaudio read granularity.
	FramesPerBuffer = 1024
)

// ContentType is the encoding Stop produces.
const ContentType = "audio/wav"

// Capture records one utterance from the default input device. Only one
// session may be active at a time; Start while recording is a no-op and the
// device is always released on Stop, even when nothing was buffered.
type Capture struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []float32
	samples []float32
	running bool
	done    chan struct{}
}

// NewCapture initializes the audio host. Callers must Close when finished.
func NewCapture() (*Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, chat.E(chat.KindPermission, "audio.init", "audio host unavailable", err)
	}
	return &Capture{buffer: make([]float32, FramesPerBuffer)}, nil
}

// Start acquires the microphone and begins buffering.
func (c *Capture) Start() error {
	const op = "audio.start"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	c.samples = make([]float32, 0, SampleRate*30)
	c.done = make(chan struct{})

	stream, err := portaudio.OpenDefaultStream(Channels, 0, SampleRate, FramesPerBuffer, c.buffer)
	if err != nil {
		return chat.E(chat.KindPermission, op, "microphone unavailable", err)
	}

	c.stream = stream
	c.running = true

	if err := stream.Start(); err != nil {
		stream.Close()
		c.stream = nil
		c.running = false
		return chat.E(chat.KindPermission, op, "could not start capture", err)
	}

	go c.captureLoop()
	return nil
}

func (c *Capture) captureLoop() {
	defer close(c.done)

	for {
		c.mu.Lock()
		running := c.running
		stream := c.stream
		c.mu.Unlock()
		if !running || stream == nil {
			return
		}

		available, err := stream.AvailableToRead()
		if err != nil || available == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err := stream.Read(); err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		c.mu.Lock()
		if c.running {
			chunk := make([]float32, len(c.buffer))
			copy(chunk, c.buffer)
			c.samples = append(c.samples, chunk...)
		}
		c.mu.Unlock()
	}
}

// Stop finalizes the session and returns the recording as one encoded WAV
// blob. The device is released unconditionally; a zero-length recording
// yields a valid empty WAV.
func (c *Capture) Stop() []byte {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return EncodeWAV(nil, SampleRate)
	}

	c.running = false
	stream := c.stream
	c.stream = nil
	samples := c.samples
	c.samples = nil
	done := c.done
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	if stream != nil {
		stream.Stop()
		stream.Close()
	}

	return EncodeWAV(samples, SampleRate)
}

// Recording reports whether a capture session is active.
func (c *Capture) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Close releases the device and the audio host.
func (c *Capture) Close() {
	c.Stop()
	portaudio.Terminate()
}
