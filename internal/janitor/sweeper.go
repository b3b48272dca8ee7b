// Package janitor removes aged files from the service's working directories.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultInterval = time.Hour
	DefaultMaxAge   = 24 * time.Hour
)

// Sweeper deletes regular files older than MaxAge from Dirs. Subdirectories
// are left alone.
type Sweeper struct {
	Dirs     []string
	MaxAge   time.Duration
	Interval time.Duration

	// OnRemoved is called with the number of files removed by each sweep.
	OnRemoved func(n int)

	now func() time.Time
}

func New(dirs []string, maxAge, interval time.Duration) *Sweeper {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		Dirs:     dirs,
		MaxAge:   maxAge,
		Interval: interval,
		now:      time.Now,
	}
}

// Sweep runs one pass over every directory. Missing directories are skipped;
// per-file failures are collected and do not stop the pass.
func (s *Sweeper) Sweep() (int, error) {
	cutoff := s.now().Add(-s.MaxAge)
	removed := 0
	var errs []error
	for _, dir := range s.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("read %s: %w", dir, err))
			continue
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
				continue
			}
			removed++
		}
	}
	if removed > 0 && s.OnRemoved != nil {
		s.OnRemoved(removed)
	}
	return removed, errors.Join(errs...)
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepAndLog()
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog()
		}
	}
}

func (s *Sweeper) sweepAndLog() {
	n, err := s.Sweep()
	if err != nil {
		log.Printf("cleanup sweep: %v", err)
	}
	if n > 0 {
		log.Printf("cleanup sweep removed %d file(s) older than %s", n, s.MaxAge)
	}
}
