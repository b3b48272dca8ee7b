package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/avaass/internal/audio"
	"github.com/ent0n29/avaass/internal/kv"
)

var (
	ErrNotFound = errors.New("voice profile not found")
	ErrTooLarge = errors.New("reference audio too large")
	ErrEmpty    = errors.New("reference audio is empty")
)

// Profile is a stored voice cloning reference sample.
type Profile struct {
	ID         string    `json:"id"`
	Path       string    `json:"-"`
	SourceName string    `json:"source_name"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// WAVConverter normalizes uploaded audio.
type WAVConverter interface {
	ToWAV(ctx context.Context, in, out string, sampleRate int) error
}

// Store keeps reference samples as <dir>/<id>.wav with metadata in a kv index.
type Store struct {
	dir       string
	uploadDir string
	conv      WAVConverter
	index     kv.Store
	maxBytes  int64
}

func NewStore(dir, uploadDir string, conv WAVConverter, index kv.Store, maxBytes int64) *Store {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Store{dir: dir, uploadDir: uploadDir, conv: conv, index: index, maxBytes: maxBytes}
}

func profileKey(id string) kv.Key { return kv.Key{"profile", id} }

// Create stores the upload read from r as a new profile. The raw upload is
// removed whether or not conversion succeeds.
func (s *Store) Create(ctx context.Context, r io.Reader, sourceName string) (Profile, error) {
	id := uuid.NewString()
	upload := filepath.Join(s.uploadDir, "profile_upload_"+id+safeExt(sourceName))
	defer os.Remove(upload)

	n, err := writeLimited(upload, r, s.maxBytes)
	if err != nil {
		return Profile{}, err
	}
	if n == 0 {
		return Profile{}, ErrEmpty
	}

	out := filepath.Join(s.dir, id+".wav")
	if err := s.conv.ToWAV(ctx, upload, out, audio.ProfileSampleRate); err != nil {
		_ = os.Remove(out)
		return Profile{}, fmt.Errorf("convert reference audio: %w", err)
	}
	info, err := os.Stat(out)
	if err != nil {
		return Profile{}, fmt.Errorf("stat profile sample: %w", err)
	}

	p := Profile{
		ID:         id,
		Path:       out,
		SourceName: filepath.Base(sourceName),
		SizeBytes:  info.Size(),
		CreatedAt:  time.Now().UTC(),
	}
	b, err := json.Marshal(p)
	if err != nil {
		return Profile{}, err
	}
	if err := s.index.Set(ctx, profileKey(id), b); err != nil {
		// The sample is still usable through Resolve; only the listing loses it.
		log.Printf("profile index write failed for %s: %v", id, err)
	}
	return p, nil
}

// Resolve returns the sample path for id when the id is well formed and the file exists.
func (s *Store) Resolve(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	path := filepath.Join(s.dir, id+".wav")
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

func (s *Store) Get(ctx context.Context, id string) (Profile, error) {
	b, err := s.index.Get(ctx, profileKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", id, err)
	}
	p.Path = filepath.Join(s.dir, p.ID+".wav")
	return p, nil
}

// List returns indexed profiles, newest first.
func (s *Store) List(ctx context.Context) ([]Profile, error) {
	out := []Profile{}
	for e, err := range s.index.List(ctx, kv.Key{"profile"}) {
		if err != nil {
			return nil, err
		}
		var p Profile
		if err := json.Unmarshal(e.Value, &p); err != nil {
			log.Printf("profile index entry %s unreadable: %v", e.Key, err)
			continue
		}
		p.Path = filepath.Join(s.dir, p.ID+".wav")
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes the sample and its index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	path, ok := s.Resolve(id)
	if !ok {
		return ErrNotFound
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.index.Delete(ctx, profileKey(id))
}

func (s *Store) Close() error {
	return s.index.Close()
}

func writeLimited(path string, r io.Reader, max int64) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, io.LimitReader(r, max+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if n > max {
		return n, ErrTooLarge
	}
	return n, nil
}

func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 6 || strings.ContainsAny(ext, `/\ `) {
		return ""
	}
	return ext
}
