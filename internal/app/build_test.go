package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ent0n29/avaass/internal/config"
	"github.com/ent0n29/avaass/internal/storage"
	"github.com/ent0n29/avaass/internal/synth"
	"github.com/ent0n29/avaass/internal/transcribe"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.UploadDir = filepath.Join(root, "uploads")
	cfg.PublicDir = filepath.Join(root, "public")
	cfg.ProfilesDir = filepath.Join(root, "profiles")
	cfg.TempDir = filepath.Join(root, "temp")
	return cfg
}

func TestBuildCreatesDirectoriesAndWiresLocalBackends(t *testing.T) {
	cfg := testConfig(t)
	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	for _, dir := range cfg.Dirs() {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("directory %s not created: %v", dir, err)
		}
	}
	if res.API == nil || res.Sweeper == nil {
		t.Fatalf("Build() result missing API or sweeper: %+v", res)
	}
	if res.Backends.Speech != "local tts" {
		t.Fatalf("Speech backend = %q, want local tts", res.Backends.Speech)
	}
}

func TestResolveBackendsSelections(t *testing.T) {
	cfg := testConfig(t)
	cfg.ASRBackend = "openai"
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OutputPublisher = "s3"
	cfg.S3Bucket = "voices"
	cfg.TTSRemoteURL = "http://tts.internal:5000"

	setup, err := resolveBackends(cfg, newConverter(cfg), nil, nil)
	if err != nil {
		t.Fatalf("resolveBackends() error = %v", err)
	}
	defer setup.cleanup()
	if _, ok := setup.pipeline.Recognizer.(*transcribe.OpenAIRecognizer); !ok {
		t.Fatalf("Recognizer = %T, want *OpenAIRecognizer", setup.pipeline.Recognizer)
	}
	if _, ok := setup.speech.(*synth.Client); !ok {
		t.Fatalf("speech = %T, want *synth.Client", setup.speech)
	}
	if _, ok := setup.publisher.(*storage.S3Publisher); !ok {
		t.Fatalf("publisher = %T, want *S3Publisher", setup.publisher)
	}
}

func TestResolveBackendsRejectsUnknownPublisher(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputPublisher = "ftp"
	if _, err := resolveBackends(cfg, newConverter(cfg), nil, nil); err == nil {
		t.Fatalf("resolveBackends() error = nil, want error")
	}
}
