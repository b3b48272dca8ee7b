package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/avaass/internal/history"
	"github.com/ent0n29/avaass/internal/protocol"
	"github.com/ent0n29/avaass/internal/session"
	"github.com/ent0n29/avaass/internal/synth"
)

func toSynthRequest(req protocol.SynthesisRequest) synth.Request {
	id := strings.TrimSpace(req.RequestID)
	if id == "" {
		id = uuid.NewString()
	}
	return synth.Request{
		Text:           strings.TrimSpace(req.Text),
		Voice:          strings.TrimSpace(req.Voice),
		VoiceProfileID: strings.TrimSpace(req.VoiceProfile),
		RequestID:      id,
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// handleSynthesisWS streams synthesized audio: binary chunks, then END, or
// a single "ERROR: msg" text frame. Requests on one socket run in order.
func (s *Server) handleSynthesisWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "synthesis engine not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c := s.openConnection(session.KindSynthesis, r.RemoteAddr)
	log.Printf("synthesis client %s connected from %s", c.ID, c.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	writer := s.startWriter(ctx, cancel, conn)

	requests := make(chan []byte, 8)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-requests:
				if !ok {
					return
				}
				s.streamSynthesis(ctx, c.ID, raw, writer)
			}
		}
	}()

	s.configureRead(conn)
	var readErr error
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		s.extendRead(conn)
		if msgType != websocket.TextMessage {
			s.metrics.WSMessages.WithLabelValues("inbound", "binary").Inc()
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", "synthesis_request").Inc()
		select {
		case requests <- data:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	s.closeConnection(c, readErr)
	cancel()
	<-workerDone
	<-writer.done
	log.Printf("synthesis client %s disconnected", c.ID)
}

func (s *Server) streamSynthesis(ctx context.Context, connID string, raw []byte, writer *socketWriter) {
	fail := func(msg string) {
		writer.send(ctx, frame{msgType: websocket.TextMessage, data: []byte(protocol.StreamError(msg)), label: "error"})
	}

	parsed, err := protocol.ParseSynthesisRequest(raw)
	if err != nil {
		fail(err.Error())
		return
	}
	req := toSynthRequest(parsed)
	res, err := s.deps.Engine.Synthesize(ctx, req)
	s.metrics.SynthesisRequests.WithLabelValues(string(synth.ModeStream), outcome(err)).Inc()
	if err != nil {
		log.Printf("stream synthesis failed for %s request %s: %v", connID, req.RequestID, err)
		fail(err.Error())
		return
	}

	for _, chunk := range synth.Chunks(res.Audio, s.cfg.TTSChunkBytes) {
		if !writer.send(ctx, frame{msgType: websocket.BinaryMessage, data: chunk, label: "audio"}) {
			return
		}
	}
	writer.send(ctx, frame{msgType: websocket.TextMessage, data: []byte(protocol.StreamEnd), label: "end"})
}

func (s *Server) decodeSynthesisRequest(w http.ResponseWriter, r *http.Request) (synth.Request, bool) {
	var body protocol.SynthesisRequest
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return synth.Request{}, false
	}
	req := toSynthRequest(body)
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text_required", "Text is required")
		return synth.Request{}, false
	}
	return req, true
}

func synthesisStatus(err error) (int, string) {
	switch {
	case errors.Is(err, synth.ErrEmptyText), errors.Is(err, synth.ErrNoOutputPath):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "synthesis_failed"
	}
}

// handleSynthesize returns the WAV body directly.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "synthesis engine not configured")
		return
	}
	req, ok := s.decodeSynthesisRequest(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Engine.Synthesize(r.Context(), req)
	s.metrics.SynthesisRequests.WithLabelValues(string(synth.ModeLocal), outcome(err)).Inc()
	if err != nil {
		log.Printf("synthesis failed for request %s: %v", req.RequestID, err)
		status, code := synthesisStatus(err)
		respondError(w, status, code, "Failed to generate speech")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.Header().Set("X-Request-Id", res.RequestID)
	w.Header().Set("X-Voice-Clone", strconv.FormatBool(res.Cloned))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

// handleTTS publishes the synthesized file and returns where to fetch it.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Speech == nil || s.deps.Publisher == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "synthesis not configured")
		return
	}
	req, ok := s.decodeSynthesisRequest(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Speech.Synthesize(r.Context(), req)
	mode := string(res.Mode)
	if mode == "" {
		mode = string(synth.ModeLocal)
	}
	s.metrics.SynthesisRequests.WithLabelValues(mode, outcome(err)).Inc()
	if err != nil {
		log.Printf("tts failed for request %s: %v", req.RequestID, err)
		status, code := synthesisStatus(err)
		respondError(w, status, code, "Failed to generate speech")
		return
	}
	if len(res.Audio) == 0 {
		log.Printf("tts returned no audio for request %s", req.RequestID)
		respondError(w, http.StatusBadGateway, "empty_audio", "Failed to generate speech")
		return
	}

	name := "output_" + uuid.NewString() + ".wav"
	audioURL, err := s.deps.Publisher.Publish(r.Context(), name, res.Audio)
	if err != nil {
		log.Printf("publish %s failed: %v", name, err)
		respondError(w, http.StatusInternalServerError, "publish_failed", "Failed to process TTS request")
		return
	}
	s.deps.History.Record(r.Context(), history.Record{
		Kind: history.KindSynthesis,
		Text: req.Text,
	})

	w.Header().Set("X-Voice-Clone", strconv.FormatBool(res.Cloned))
	respondJSON(w, http.StatusOK, map[string]string{"audio_url": audioURL})
}
