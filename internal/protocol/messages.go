package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeTranscription MessageType = "transcription"
	TypeError         MessageType = "error"
)

// Streaming synthesis sentinels.
const (
	StreamEnd         = "END"
	StreamErrorPrefix = "ERROR:"
)

// Client-facing error texts for the transcription socket.
const (
	ErrTextConvert    = "Failed to process audio format"
	ErrTextRecognize  = "Failed to transcribe audio"
	ErrTextProcessing = "Failed to process audio data"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrEmptyRequest    = errors.New("empty synthesis request")
)

type Envelope struct {
	Type MessageType `json:"type"`
}

type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is sent to a transcription socket for each processed batch.
type Transcription struct {
	Type             MessageType `json:"type"`
	Text             string      `json:"text"`
	Confidence       float64     `json:"confidence"`
	Language         string      `json:"language"`
	ProcessingTimeMS int64       `json:"processing_time_ms"`
	WordTimestamps   []Word      `json:"word_timestamps"`
	Segments         []Segment   `json:"segments"`
}

type ErrorMessage struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
}

func NewError(text string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Error: text}
}

// SynthesisRequest is the body of POST /synthesize, POST /api/tts and each
// message on the streaming synthesis socket.
type SynthesisRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice,omitempty"`
	VoiceProfile string `json:"voice_profile,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
}

// ParseServerMessage decodes a JSON text frame received by a transcription client.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeTranscription:
		var msg Transcription
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Error == "" {
			return nil, errors.New("invalid error message")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// ParseSynthesisRequest accepts either a JSON request or raw text.
func ParseSynthesisRequest(raw []byte) (SynthesisRequest, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return SynthesisRequest{}, ErrEmptyRequest
	}
	if strings.HasPrefix(trimmed, "{") {
		var req SynthesisRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return SynthesisRequest{}, fmt.Errorf("invalid synthesis request: %w", err)
		}
		req.Text = strings.TrimSpace(req.Text)
		if req.Text == "" {
			return SynthesisRequest{}, ErrEmptyRequest
		}
		return req, nil
	}
	return SynthesisRequest{Text: trimmed}, nil
}

// StreamError formats the failure sentinel for the synthesis stream.
func StreamError(msg string) string {
	return StreamErrorPrefix + " " + msg
}

// ParseStreamError reports whether text is a failure sentinel and returns its message.
func ParseStreamError(text string) (string, bool) {
	if !strings.HasPrefix(text, StreamErrorPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(text, StreamErrorPrefix)), true
}
