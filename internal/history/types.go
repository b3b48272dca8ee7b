package history

import (
	"context"
	"time"
)

// Kind of a history record.
const (
	KindTranscription = "transcription"
	KindSynthesis     = "synthesis"
)

// Record is one saved transcript or synthesized utterance.
type Record struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Kind         string    `json:"kind"`
	Text         string    `json:"text"`
	Language     string    `json:"language,omitempty"`
	Confidence   float64   `json:"confidence"`
	Redacted     bool      `json:"redacted"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists and retrieves history records.
type Store interface {
	Save(ctx context.Context, record Record) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
