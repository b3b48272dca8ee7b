// Package kv is a small path-keyed key-value store used for service metadata.
// Keys are string segments joined with ':' when stored.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

var ErrNotFound = errors.New("kv: not found")

// Key is a hierarchical path such as Key{"profile", "<id>"}. Segments must not contain ':'.
type Key []string

func (k Key) String() string {
	return strings.Join(k, string(separator))
}

type Entry struct {
	Key   Key
	Value []byte
}

type Store interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key Key) error
	// List yields entries under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	Close() error
}

const separator byte = ':'

func encode(k Key) []byte {
	return []byte(k.String())
}

func decode(b []byte) Key {
	return Key(strings.Split(string(b), string(separator)))
}

// listPrefix returns the scan prefix; the trailing separator keeps "a:b" from matching "a:bc".
func listPrefix(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return append(encode(prefix), separator)
}
