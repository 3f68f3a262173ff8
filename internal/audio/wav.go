package audio

import (
	"bytes"
	"encoding/binary"
	"math"
)

// EncodeWAV packs float32 samples into a 16-bit PCM mono WAV blob.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	writeU32(&buf, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeU32(&buf, 16)
	writeU16(&buf, 1) // PCM
	writeU16(&buf, Channels)
	writeU32(&buf, uint32(sampleRate))
	writeU32(&buf, uint32(sampleRate*Channels*2)) // byte rate
	writeU16(&buf, Channels*2)                    // block align
	writeU16(&buf, 16)                            // bits per sample

	buf.WriteString("data")
	writeU32(&buf, uint32(dataLen))
	for _, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		writeU16(&buf, uint16(int16(v*math.MaxInt16)))
	}
	return buf.Bytes()
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
