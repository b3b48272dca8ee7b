package history

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/avaass/internal/policy"
)

// Recorder saves records to a Store, optionally masking PII first.
type Recorder struct {
	store   Store
	redact  bool
	timeout time.Duration
}

func NewRecorder(store Store, redact bool) *Recorder {
	return &Recorder{store: store, redact: redact, timeout: 5 * time.Second}
}

// Record saves one entry. Empty text is skipped. Failures are logged only.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if r == nil || r.store == nil {
		return
	}
	rec.Text = strings.TrimSpace(rec.Text)
	if rec.Text == "" {
		return
	}
	if r.redact {
		rec.Text, rec.Redacted = policy.RedactPII(rec.Text)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.store.Save(ctx, rec); err != nil {
		log.Printf("history save failed for %s: %v", rec.ConnectionID, err)
	}
}

func (r *Recorder) Recent(ctx context.Context, limit int) ([]Record, error) {
	return r.store.Recent(ctx, limit)
}
