package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Player materializes fetched audio payloads as local files so an external
// player (or the user) can open them. It owns at most one file at a time:
// writing a new payload removes the previous file, and Close removes the
// last one, so no temp file outlives its single play.
type Player struct {
	mu   sync.Mutex
	dir  string
	last string
}

// NewPlayer creates a player writing into dir, or the system temp dir when
// dir is empty.
func NewPlayer(dir string) *Player {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Player{dir: dir}
}

// Write stores the payload under a unique name and returns its path. The
// previously written file, if any, is removed first.
func (p *Player) Write(data []byte, ext string) (string, error) {
	if ext == "" {
		ext = ".mp3"
	}
	path := filepath.Join(p.dir, fmt.Sprintf("parley-%s%s", uuid.NewString(), ext))

	p.mu.Lock()
	prev := p.last
	p.last = path
	p.mu.Unlock()

	if prev != "" {
		os.Remove(prev)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		p.mu.Lock()
		if p.last == path {
			p.last = ""
		}
		p.mu.Unlock()
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return path, nil
}

// Close removes the last written file.
func (p *Player) Close() {
	p.mu.Lock()
	last := p.last
	p.last = ""
	p.mu.Unlock()
	if last != "" {
		os.Remove(last)
	}
}
