package transcribe

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ent0n29/avaass/internal/protocol"
)

type (
	Word    = protocol.Word
	Segment = protocol.Segment
)

// Result is the recognizer output for one batch.
type Result struct {
	Text             string
	Confidence       float64
	Language         string
	ProcessingTimeMS int64
	Words            []Word
	Segments         []Segment
}

// Message renders r as the transcription socket payload.
func (r Result) Message() protocol.Transcription {
	words := r.Words
	if words == nil {
		words = []Word{}
	}
	segments := r.Segments
	if segments == nil {
		segments = []Segment{}
	}
	return protocol.Transcription{
		Type:             protocol.TypeTranscription,
		Text:             r.Text,
		Confidence:       r.Confidence,
		Language:         r.Language,
		ProcessingTimeMS: r.ProcessingTimeMS,
		WordTimestamps:   words,
		Segments:         segments,
	}
}

type jsonOutput struct {
	Text           *string   `json:"text"`
	Confidence     float64   `json:"confidence"`
	Language       string    `json:"language"`
	WordTimestamps []Word    `json:"word_timestamps"`
	Segments       []Segment `json:"segments"`
}

var (
	timestampToken   = regexp.MustCompile(`\[(?:\d+:)?\d+:\d+\.\d+\s*-->\s*(?:\d+:)?\d+:\d+\.\d+\]`)
	detectedLanguage = regexp.MustCompile(`(?i)Detected language:\s*([a-z]{2,3})`)
)

const unknownLanguage = "unknown"

// ParseOutput interprets recognizer stdout. A JSON document is used as is;
// anything else is treated as plain text with timestamp tokens removed.
func ParseOutput(stdout, stderr []byte) Result {
	var doc jsonOutput
	if err := json.Unmarshal(stdout, &doc); err == nil && doc.Text != nil {
		lang := strings.TrimSpace(doc.Language)
		if lang == "" {
			lang = unknownLanguage
		}
		return Result{
			Text:       strings.TrimSpace(*doc.Text),
			Confidence: clamp01(doc.Confidence),
			Language:   lang,
			Words:      doc.WordTimestamps,
			Segments:   doc.Segments,
		}
	}

	var parts []string
	for _, line := range strings.Split(string(stdout), "\n") {
		line = strings.TrimSpace(timestampToken.ReplaceAllString(line, ""))
		if line != "" {
			parts = append(parts, line)
		}
	}
	lang := unknownLanguage
	if m := detectedLanguage.FindSubmatch(stderr); m != nil {
		lang = strings.ToLower(string(m[1]))
	}
	return Result{
		Text:     strings.Join(parts, " "),
		Language: lang,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
