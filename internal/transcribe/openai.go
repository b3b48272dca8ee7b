package transcribe

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// audioAPI is the subset of the OpenAI client used for recognition.
type audioAPI interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
	CreateTranslation(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAIRecognizer sends the converted WAV to the OpenAI audio API.
type OpenAIRecognizer struct {
	api   audioAPI
	model string
}

func NewOpenAIRecognizer(apiKey, baseURL, model string) *OpenAIRecognizer {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.Whisper1
	}
	return &OpenAIRecognizer{api: openai.NewClientWithConfig(cfg), model: model}
}

func (r *OpenAIRecognizer) Recognize(ctx context.Context, wavPath string, opts Options) (Result, error) {
	req := openai.AudioRequest{
		Model:    r.model,
		FilePath: wavPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	if lang := strings.TrimSpace(opts.Language); lang != "" && !strings.EqualFold(lang, "auto") {
		req.Language = lang
	}

	var (
		resp openai.AudioResponse
		err  error
	)
	if opts.Translate {
		resp, err = r.api.CreateTranslation(ctx, req)
	} else {
		resp, err = r.api.CreateTranscription(ctx, req)
	}
	if err != nil {
		return Result{}, fmt.Errorf("openai audio: %w", err)
	}
	return fromAudioResponse(resp, opts), nil
}

func fromAudioResponse(resp openai.AudioResponse, opts Options) Result {
	out := Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: strings.TrimSpace(resp.Language),
	}
	if out.Language == "" {
		out.Language = unknownLanguage
	}

	logprob := 0.0
	for _, seg := range resp.Segments {
		out.Segments = append(out.Segments, Segment{
			ID:    seg.ID,
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
		logprob += seg.AvgLogprob
	}
	if n := len(resp.Segments); n > 0 {
		out.Confidence = clamp01(math.Exp(logprob / float64(n)))
	}
	if opts.WordTimestamps {
		for _, w := range resp.Words {
			out.Words = append(out.Words, Word{Word: w.Word, Start: w.Start, End: w.End})
		}
	}
	return out
}
