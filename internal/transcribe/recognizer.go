package transcribe

import (
	"context"
	"strconv"
	"strings"

	"github.com/ent0n29/avaass/internal/audio"
)

// Options configure a recognition run.
type Options struct {
	Model          string
	Language       string
	Translate      bool
	WordTimestamps bool
	VAD            bool
	VADThreshold   float64
}

func DefaultOptions() Options {
	return Options{
		Model:          "medium",
		Language:       "auto",
		WordTimestamps: true,
		VAD:            true,
		VADThreshold:   0.5,
	}
}

// Recognizer turns a 16 kHz mono WAV file into text.
type Recognizer interface {
	Recognize(ctx context.Context, wavPath string, opts Options) (Result, error)
}

// CLIRecognizer runs the whisper command line tool.
type CLIRecognizer struct {
	Binary string
	Runner audio.Runner
}

func NewCLIRecognizer(binary string) *CLIRecognizer {
	if strings.TrimSpace(binary) == "" {
		binary = "whisper"
	}
	return &CLIRecognizer{Binary: binary, Runner: audio.ExecRunner{}}
}

// Args builds the whisper argument vector for wavPath.
func Args(wavPath string, opts Options) []string {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "medium"
	}
	args := []string{wavPath, "--model", model}
	if lang := strings.TrimSpace(opts.Language); lang != "" && !strings.EqualFold(lang, "auto") {
		args = append(args, "--language", lang)
	}
	if opts.Translate {
		args = append(args, "--translate")
	}
	if opts.WordTimestamps {
		args = append(args, "--word_timestamps", "true")
	}
	if opts.VAD {
		args = append(args, "--vad_threshold", strconv.FormatFloat(opts.VADThreshold, 'f', -1, 64))
	}
	return append(args, "--output_format", "json")
}

func (r *CLIRecognizer) Recognize(ctx context.Context, wavPath string, opts Options) (Result, error) {
	out, err := r.Runner.Run(ctx, r.Binary, Args(wavPath, opts)...)
	if err != nil {
		return Result{}, err
	}
	return ParseOutput(out.Stdout, out.Stderr), nil
}
