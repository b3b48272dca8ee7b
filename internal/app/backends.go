package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/avaass/internal/audio"
	"github.com/ent0n29/avaass/internal/config"
	"github.com/ent0n29/avaass/internal/observability"
	"github.com/ent0n29/avaass/internal/profiles"
	"github.com/ent0n29/avaass/internal/storage"
	"github.com/ent0n29/avaass/internal/synth"
	"github.com/ent0n29/avaass/internal/transcribe"
)

// Backends names what each pipeline runs on.
type Backends struct {
	Recognizer string
	Speech     string
	Publisher  string
}

type backendSetup struct {
	pipeline  *transcribe.Pipeline
	engine    *synth.Engine
	speech    synth.Synthesizer
	publisher storage.Publisher
	info      Backends
	cleanup   func() error
}

func newConverter(cfg config.Config) *audio.Converter {
	return audio.NewConverter(cfg.FFmpegPath, cfg.ASRTimeout)
}

func recognizerOptions(cfg config.Config) transcribe.Options {
	return transcribe.Options{
		Model:          cfg.WhisperModel,
		Language:       cfg.WhisperLanguage,
		Translate:      cfg.WhisperTranslate,
		WordTimestamps: cfg.WhisperWordStamps,
		VAD:            cfg.WhisperVAD,
		VADThreshold:   cfg.WhisperVADThresh,
	}
}

func resolveBackends(cfg config.Config, conv *audio.Converter, profileStore *profiles.Store, metrics *observability.Metrics) (backendSetup, error) {
	var setup backendSetup

	var rec transcribe.Recognizer
	switch strings.ToLower(strings.TrimSpace(cfg.ASRBackend)) {
	case "", "cli":
		rec = transcribe.NewCLIRecognizer(cfg.WhisperCLI)
		setup.info.Recognizer = "whisper cli (" + cfg.WhisperModel + ")"
	case "openai":
		rec = transcribe.NewOpenAIRecognizer(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		setup.info.Recognizer = "openai (" + cfg.OpenAIModel + ")"
	default:
		return backendSetup{}, fmt.Errorf("unknown ASR backend %q", cfg.ASRBackend)
	}
	setup.pipeline = transcribe.NewPipeline(cfg.TempDir, conv, rec, recognizerOptions(cfg), cfg.ASRTimeout, cfg.ASRMaxConcurrent)
	if metrics != nil {
		setup.pipeline.Observe = metrics.ObserveStage
	}

	var resolver synth.ProfileResolver
	if profileStore != nil {
		resolver = profileStore
	}
	setup.engine = synth.NewEngine(cfg.TTSCLI, cfg.XTTSCLI, cfg.TTSDefaultModel, cfg.TempDir, cfg.TTSTimeout, resolver)
	setup.speech = setup.engine
	setup.info.Speech = "local tts"
	if remote := strings.TrimSpace(cfg.TTSRemoteURL); remote != "" {
		client, err := synth.NewClient(remote)
		if err != nil {
			return backendSetup{}, fmt.Errorf("remote synthesis client init failed: %w", err)
		}
		setup.speech = client
		setup.cleanup = client.Close
		setup.info.Speech = "remote " + remote
	}

	switch strings.ToLower(strings.TrimSpace(cfg.OutputPublisher)) {
	case "", "local":
		setup.publisher = storage.NewLocal(cfg.PublicDir)
		setup.info.Publisher = "local " + cfg.PublicDir
	case "s3":
		s3cfg := storage.S3Config{
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
		}
		setup.publisher = storage.NewS3Publisher(storage.NewS3Client(s3cfg), s3cfg)
		setup.info.Publisher = "s3://" + cfg.S3Bucket
	default:
		return backendSetup{}, fmt.Errorf("unknown output publisher %q", cfg.OutputPublisher)
	}

	return setup, nil
}
