package kv

import (
	"context"
	"errors"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	b, err := OpenBadger("")
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return map[string]Store{"memory": NewMemory(), "badger": b}
}

func TestStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := Key{"profile", "p1"}
			if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
			}
			if err := s.Set(ctx, key, []byte("v1")); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil || string(got) != "v1" {
				t.Fatalf("Get() = %q, %v; want v1", got, err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete(missing) error = %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(after delete) error = %v", err)
			}
		})
	}
}

func TestStoreListPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.Set(ctx, Key{"profile", "b"}, []byte("2"))
			_ = s.Set(ctx, Key{"profile", "a"}, []byte("1"))
			_ = s.Set(ctx, Key{"profiles", "x"}, []byte("no"))
			_ = s.Set(ctx, Key{"other", "a"}, []byte("no"))

			var keys []string
			for e, err := range s.List(ctx, Key{"profile"}) {
				if err != nil {
					t.Fatalf("List() error = %v", err)
				}
				keys = append(keys, e.Key.String())
			}
			if len(keys) != 2 || keys[0] != "profile:a" || keys[1] != "profile:b" {
				t.Fatalf("keys = %v, want [profile:a profile:b]", keys)
			}
		})
	}
}
