package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ent0n29/avaass/internal/config"
	"github.com/ent0n29/avaass/internal/history"
	"github.com/ent0n29/avaass/internal/httpapi"
	"github.com/ent0n29/avaass/internal/janitor"
	"github.com/ent0n29/avaass/internal/kv"
	"github.com/ent0n29/avaass/internal/observability"
	"github.com/ent0n29/avaass/internal/profiles"
	"github.com/ent0n29/avaass/internal/session"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Sweeper  *janitor.Sweeper
	// Backends describes the selected recognizer, synthesizer and publisher for startup logs.
	Backends Backends

	// Cleanup should be called on shutdown to release external resources (DB, index, remote clients).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	for _, dir := range cfg.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	historyStore, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("history store init failed: %w", err)
	}

	indexDir := cfg.ProfileIndexDir
	if indexDir == "" {
		indexDir = filepath.Join(cfg.ProfilesDir, ".index")
	}
	index, err := kv.OpenBadger(indexDir)
	if err != nil {
		_ = historyStore.Close()
		return nil, fmt.Errorf("profile index init failed: %w", err)
	}

	converter := newConverter(cfg)
	profileStore := profiles.NewStore(cfg.ProfilesDir, cfg.UploadDir, converter, index, cfg.ProfileMaxBytes)

	b, err := resolveBackends(cfg, converter, profileStore, metrics)
	if err != nil {
		_ = profileStore.Close()
		_ = historyStore.Close()
		return nil, err
	}

	sessions := session.NewManager(cfg.ConnectionRetention)

	probes := map[string]func(context.Context) error{}
	if pg, ok := historyStore.(*history.PostgresStore); ok {
		probes["history_store"] = pg.Ping
	}

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:    sessions,
		Metrics:     metrics,
		Transcriber: b.pipeline,
		Engine:      b.engine,
		Speech:      b.speech,
		Profiles:    profileStore,
		Publisher:   b.publisher,
		History:     history.NewRecorder(historyStore, cfg.HistoryRedactPII),
		Probes:      probes,
	})

	sweeper := janitor.New([]string{cfg.PublicDir, cfg.TempDir, cfg.UploadDir}, cfg.CleanupMaxAge, cfg.CleanupInterval)
	sweeper.OnRemoved = func(n int) { metrics.SweptFiles.Add(float64(n)) }

	cleanup := func() error {
		var errs []error
		if b.cleanup != nil {
			errs = append(errs, b.cleanup())
		}
		errs = append(errs, profileStore.Close(), historyStore.Close())
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Metrics:  metrics,
		Sweeper:  sweeper,
		Backends: b.info,
		Cleanup:  cleanup,
	}, nil
}
