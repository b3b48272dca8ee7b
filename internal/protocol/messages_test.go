package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseServerMessageTranscription(t *testing.T) {
	raw := []byte(`{"type":"transcription","text":"hello","confidence":0.9,"language":"en","processing_time_ms":42,"word_timestamps":[{"word":"hello","start":0,"end":0.4}],"segments":[]}`)
	msg, err := ParseServerMessage(raw)
	if err != nil {
		t.Fatalf("ParseServerMessage() error = %v", err)
	}
	tr, ok := msg.(Transcription)
	if !ok {
		t.Fatalf("message type = %T, want Transcription", msg)
	}
	if tr.Text != "hello" || tr.Language != "en" || tr.ProcessingTimeMS != 42 {
		t.Fatalf("unexpected transcription: %+v", tr)
	}
	if len(tr.WordTimestamps) != 1 || tr.WordTimestamps[0].End != 0.4 {
		t.Fatalf("WordTimestamps = %+v", tr.WordTimestamps)
	}
}

func TestParseServerMessageError(t *testing.T) {
	msg, err := ParseServerMessage([]byte(`{"type":"error","error":"Failed to transcribe audio"}`))
	if err != nil {
		t.Fatalf("ParseServerMessage() error = %v", err)
	}
	e, ok := msg.(ErrorMessage)
	if !ok || e.Error != ErrTextRecognize {
		t.Fatalf("message = %#v, want recognize error", msg)
	}
}

func TestParseServerMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseServerMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestTranscriptionEncodesEmptyListsAsArrays(t *testing.T) {
	b, err := json.Marshal(Transcription{Type: TypeTranscription, WordTimestamps: []Word{}, Segments: []Segment{}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"transcription","text":"","confidence":0,"language":"","processing_time_ms":0,"word_timestamps":[],"segments":[]}`
	if string(b) != want {
		t.Fatalf("json = %s, want %s", b, want)
	}
}

func TestParseSynthesisRequestJSON(t *testing.T) {
	req, err := ParseSynthesisRequest([]byte(`{"text":"  hi there ","requestId":"r1","voice_profile":"p1"}`))
	if err != nil {
		t.Fatalf("ParseSynthesisRequest() error = %v", err)
	}
	if req.Text != "hi there" || req.RequestID != "r1" || req.VoiceProfile != "p1" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestParseSynthesisRequestRawText(t *testing.T) {
	req, err := ParseSynthesisRequest([]byte("  speak this  "))
	if err != nil {
		t.Fatalf("ParseSynthesisRequest() error = %v", err)
	}
	if req.Text != "speak this" {
		t.Fatalf("Text = %q, want %q", req.Text, "speak this")
	}
}

func TestParseSynthesisRequestRejectsEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", `{"text":"  "}`} {
		if _, err := ParseSynthesisRequest([]byte(raw)); !errors.Is(err, ErrEmptyRequest) {
			t.Fatalf("ParseSynthesisRequest(%q) error = %v, want ErrEmptyRequest", raw, err)
		}
	}
}

func TestStreamErrorRoundTrip(t *testing.T) {
	msg, ok := ParseStreamError(StreamError("engine exploded"))
	if !ok || msg != "engine exploded" {
		t.Fatalf("ParseStreamError() = %q, %v", msg, ok)
	}
	if _, ok := ParseStreamError(StreamEnd); ok {
		t.Fatalf("ParseStreamError(END) ok = true, want false")
	}
}
