// Package storage publishes synthesized audio files and returns a reference
// clients can fetch them from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidName = errors.New("storage: invalid object name")

// Publisher stores data under name and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, name string, data []byte) (string, error)
}

// Local writes into a directory served under URLPrefix.
type Local struct {
	Dir       string
	URLPrefix string
}

func NewLocal(dir string) *Local {
	return &Local{Dir: dir, URLPrefix: "/public"}
}

func (l *Local) Publish(_ context.Context, name string, data []byte) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	path := filepath.Join(l.Dir, name)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: publish %s: %w", name, err)
	}
	return strings.TrimRight(l.URLPrefix, "/") + "/" + name, nil
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	return nil
}
