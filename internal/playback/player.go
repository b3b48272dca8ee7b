package playback

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ent0n29/avaass/internal/audio"
)

// Audio is a decoded synthesis result ready to play.
type Audio struct {
	Entry    Entry
	WAV      audio.WAV
	Raw      []byte
	Duration time.Duration
}

// Decode parses a WAV buffer.
func Decode(buf []byte) (Audio, error) {
	w, err := audio.DecodeWAV(buf)
	if err != nil {
		return Audio{}, fmt.Errorf("decode audio: %w", err)
	}
	return Audio{WAV: w, Raw: buf, Duration: w.Duration()}, nil
}

// Player outputs audio. Play returns when playback has finished.
type Player interface {
	Play(ctx context.Context, a Audio) error
}

// CommandPlayer pipes the WAV to an external player on stdin, for example
// ffplay -nodisp -autoexit -loglevel quiet -
type CommandPlayer struct {
	Command string
	Args    []string
}

func NewFFplayPlayer() *CommandPlayer {
	return &CommandPlayer{Command: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-"}}
}

func (p *CommandPlayer) Play(ctx context.Context, a Audio) error {
	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Stdin = bytes.NewReader(a.Raw)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %v: %s", p.Command, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// DirPlayer writes each utterance as a numbered WAV file.
type DirPlayer struct {
	Dir string

	mu sync.Mutex
	n  int
}

func (p *DirPlayer) Play(_ context.Context, a Audio) error {
	p.mu.Lock()
	p.n++
	n := p.n
	p.mu.Unlock()
	path := filepath.Join(p.Dir, fmt.Sprintf("%04d_%s.wav", n, a.Entry.RequestID))
	return os.WriteFile(path, a.Raw, 0o644)
}
