package history

import (
	"context"
	"strings"
	"testing"
)

func TestInMemoryStoreRecentNewestFirst(t *testing.T) {
	s := NewInMemoryStore(3)
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three", "four"} {
		if err := s.Save(ctx, Record{Kind: KindTranscription, Text: text}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(Recent) = %d, want 3 (capped)", len(got))
	}
	if got[0].Text != "four" || got[2].Text != "two" {
		t.Fatalf("order = %q..%q, want four..two", got[0].Text, got[2].Text)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("record defaults not filled: %+v", got[0])
	}

	got, _ = s.Recent(ctx, 1)
	if len(got) != 1 || got[0].Text != "four" {
		t.Fatalf("Recent(1) = %+v", got)
	}
}

func TestRecorderRedactsAndSkipsEmpty(t *testing.T) {
	s := NewInMemoryStore(0)
	r := NewRecorder(s, true)
	ctx := context.Background()

	r.Record(ctx, Record{Kind: KindTranscription, Text: "   "})
	r.Record(ctx, Record{Kind: KindTranscription, Text: "mail sam@example.com", ConnectionID: "c1"})

	got, _ := r.Recent(ctx, 10)
	if len(got) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(got))
	}
	if !got[0].Redacted || strings.Contains(got[0].Text, "sam@example.com") {
		t.Fatalf("record not redacted: %+v", got[0])
	}
}

func TestNewStoreWithoutDatabaseIsInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), "  ")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("store type = %T, want *InMemoryStore", s)
	}
}
