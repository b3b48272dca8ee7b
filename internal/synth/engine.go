package synth

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/avaass/internal/audio"
)

// DefaultModel is used when a request names no voice.
const DefaultModel = "tts_models/en/ljspeech/tacotron2-DDC"

// ProfileResolver maps a voice profile id to its reference sample.
type ProfileResolver interface {
	Resolve(id string) (string, bool)
}

// Engine runs the local tts and xtts command line tools.
type Engine struct {
	TTS          string
	XTTS         string
	DefaultModel string
	TempDir      string
	Timeout      time.Duration
	Runner       audio.Runner
	Profiles     ProfileResolver
}

func NewEngine(tts, xtts, defaultModel, tempDir string, timeout time.Duration, profiles ProfileResolver) *Engine {
	if tts == "" {
		tts = "tts"
	}
	if xtts == "" {
		xtts = "xtts"
	}
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Engine{
		TTS:          tts,
		XTTS:         xtts,
		DefaultModel: defaultModel,
		TempDir:      tempDir,
		Timeout:      timeout,
		Runner:       audio.ExecRunner{},
		Profiles:     profiles,
	}
}

// Plan is the resolved command for one request.
type Plan struct {
	Binary string
	Args   []string
	Model  string
	Cloned bool
}

// Plan picks the voice cloning engine when the request names an existing
// profile and falls back to the stock model otherwise.
func (e *Engine) Plan(req Request, outPath string) Plan {
	text := SpeakableText(req.Text)
	if id := strings.TrimSpace(req.VoiceProfileID); id != "" {
		if sample, ok := e.resolve(id); ok {
			return Plan{
				Binary: e.XTTS,
				Args:   []string{"--text", text, "--voice_samples", sample, "--out_path", outPath},
				Model:  "xtts_v2",
				Cloned: true,
			}
		}
		log.Printf("voice profile %q not found; using default model", id)
	}
	model := strings.TrimSpace(req.Voice)
	if model == "" {
		model = e.DefaultModel
	}
	return Plan{
		Binary: e.TTS,
		Args:   []string{"--text", text, "--model_name", model, "--out_path", outPath},
		Model:  model,
	}
}

func (e *Engine) resolve(id string) (string, bool) {
	if e.Profiles == nil {
		return "", false
	}
	return e.Profiles.Resolve(id)
}

// SynthesizeTo writes the synthesized WAV to outPath.
func (e *Engine) SynthesizeTo(ctx context.Context, req Request, outPath string) (Plan, error) {
	if SpeakableText(req.Text) == "" {
		return Plan{}, ErrEmptyText
	}
	if strings.TrimSpace(outPath) == "" {
		return Plan{}, ErrNoOutputPath
	}
	plan := e.Plan(req, outPath)

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()
	if _, err := e.Runner.Run(ctx, plan.Binary, plan.Args...); err != nil {
		_ = os.Remove(outPath)
		return plan, fmt.Errorf("synthesis: %w", err)
	}
	return plan, nil
}

// Synthesize renders req into memory through a temp file that is always removed.
func (e *Engine) Synthesize(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Result{}, ErrEmptyText
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	out := filepath.Join(e.TempDir, "tts_"+fileSafe(req.RequestID)+"_"+uuid.NewString()+".wav")
	defer os.Remove(out)

	plan, err := e.SynthesizeTo(ctx, req, out)
	if err != nil {
		return Result{}, err
	}
	b, err := os.ReadFile(out)
	if err != nil {
		return Result{}, fmt.Errorf("read synthesis output: %w", err)
	}
	return Result{
		RequestID: req.RequestID,
		Audio:     b,
		Format:    "audio/wav",
		Mode:      ModeLocal,
		Model:     plan.Model,
		Cloned:    plan.Cloned,
	}, nil
}

// fileSafe keeps client supplied ids out of path syntax.
func fileSafe(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
