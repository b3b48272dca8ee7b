package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/avaass/internal/batch"
	"github.com/ent0n29/avaass/internal/config"
	"github.com/ent0n29/avaass/internal/history"
	"github.com/ent0n29/avaass/internal/observability"
	"github.com/ent0n29/avaass/internal/profiles"
	"github.com/ent0n29/avaass/internal/session"
	"github.com/ent0n29/avaass/internal/storage"
	"github.com/ent0n29/avaass/internal/synth"
	"github.com/ent0n29/avaass/internal/transcribe"
)

// Transcriber runs one audio batch through conversion and recognition.
type Transcriber interface {
	Process(ctx context.Context, b batch.Batch) (transcribe.Result, error)
}

// ProfileStore creates and lists voice cloning samples.
type ProfileStore interface {
	Create(ctx context.Context, r io.Reader, sourceName string) (profiles.Profile, error)
	List(ctx context.Context) ([]profiles.Profile, error)
}

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Sessions    *session.Manager
	Metrics     *observability.Metrics
	Transcriber Transcriber
	// Engine backs /synthesize and the /tts stream.
	Engine synth.Synthesizer
	// Speech backs /api/tts. It is Engine unless a remote synthesis server is configured.
	Speech    synth.Synthesizer
	Profiles  ProfileStore
	Publisher storage.Publisher
	History   *history.Recorder
	// Probes are extra readiness checks keyed by name.
	Probes map[string]func(context.Context) error
}

type Server struct {
	cfg       config.Config
	deps      Deps
	metrics   *observability.Metrics
	sessions  *session.Manager
	assembler *batch.Assembler
	queues    *queueRegistry
	upgrader  websocket.Upgrader
	startedAt time.Time
}

func New(cfg config.Config, deps Deps) *Server {
	if deps.Sessions == nil {
		deps.Sessions = session.NewManager(cfg.ConnectionRetention)
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}
	if deps.Speech == nil {
		deps.Speech = deps.Engine
	}
	if cfg.WSReadTimeout <= 0 {
		cfg.WSReadTimeout = 120 * time.Second
	}
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		metrics:   deps.Metrics,
		sessions:  deps.Sessions,
		queues:    newQueueRegistry(),
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	s.assembler = batch.NewAssembler(cfg.ASRBatchFrames, s.dispatchBatch)
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/ws/speech", s.handleSpeechWS)
	r.Get("/tts", s.handleSynthesisWS)
	r.Post("/synthesize", s.handleSynthesize)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Post("/api/tts", s.handleTTS)
	r.Post("/api/voice-profile", s.handleCreateVoiceProfile)
	r.Get("/api/voice-profiles", s.handleListVoiceProfiles)
	r.Get("/api/voices", s.handleListVoices)
	r.Post("/api/predict", s.handlePredict)
	r.Get("/api/transcripts", s.handleListTranscripts)
	r.Get("/api/perf", s.handlePerfLatency)
	r.Get("/public/{name}", s.handlePublic)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Seconds(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
