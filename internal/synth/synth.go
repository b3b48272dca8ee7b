package synth

import (
	"context"
	"errors"
)

var (
	ErrEmptyText    = errors.New("text is required")
	ErrNoOutputPath = errors.New("output path is required")
)

// Mode records how a result was produced.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeREST   Mode = "rest"
	ModeStream Mode = "stream"
)

type Request struct {
	Text           string
	Voice          string
	VoiceProfileID string
	RequestID      string
}

type Result struct {
	RequestID string
	Audio     []byte
	Format    string
	Mode      Mode
	Model     string
	Cloned    bool
}

// Synthesizer turns text into WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}
