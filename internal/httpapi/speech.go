package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/avaass/internal/batch"
	"github.com/ent0n29/avaass/internal/history"
	"github.com/ent0n29/avaass/internal/observability"
	"github.com/ent0n29/avaass/internal/protocol"
	"github.com/ent0n29/avaass/internal/session"
	"github.com/ent0n29/avaass/internal/transcribe"
)

// dispatchBatch hands a full batch to its connection's queue.
func (s *Server) dispatchBatch(b batch.Batch) {
	q, ok := s.queues.get(b.ConnectionID)
	if !ok {
		s.metrics.OrphanedFrames.Add(float64(len(b.Frames)))
		return
	}
	if q.Push(b) {
		s.metrics.BatchesDispatched.Inc()
	}
}

func (s *Server) handleSpeechWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcriber == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "transcription pipeline not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c := s.openConnection(session.KindTranscription, r.RemoteAddr)
	log.Printf("client %s connected from %s", c.ID, c.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	writer := s.startWriter(ctx, cancel, conn)

	queue := batch.NewQueue(s.cfg.ASRQueueDepth, func(dropped batch.Batch) {
		s.metrics.BatchesDropped.Inc()
		log.Printf("client %s queue full, dropped batch %d", dropped.ConnectionID, dropped.Seq)
	})
	s.queues.add(c.ID, queue)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		queue.Run(ctx, func(ctx context.Context, b batch.Batch) {
			s.transcribeBatch(ctx, c.ID, b, writer)
		})
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
		if msgType != websocket.BinaryMessage {
			s.metrics.WSMessages.WithLabelValues("inbound", "text").Inc()
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", "audio").Inc()
		s.assembler.Accept(c.ID, data)
	}

	// Partial batches are never transcribed.
	orphaned := s.assembler.Discard(c.ID)
	s.queues.remove(c.ID)
	waiting := queue.Close()
	if orphaned > 0 {
		s.metrics.OrphanedFrames.Add(float64(orphaned))
	}
	s.closeConnection(c, readErr)
	cancel()
	<-workerDone
	<-writer.done
	log.Printf("client %s disconnected (orphaned frames %d, queued batches discarded %d)", c.ID, orphaned, waiting)
}

func (s *Server) transcribeBatch(ctx context.Context, connID string, b batch.Batch, writer *socketWriter) {
	start := time.Now()
	res, err := s.deps.Transcriber.Process(ctx, b)
	if err != nil {
		stage := transcribe.StageOf(err)
		if stage == "" {
			stage = "process"
		}
		s.metrics.PipelineErrors.WithLabelValues(stage).Inc()
		log.Printf("transcription failed for %s batch %d at %s: %v", connID, b.Seq, stage, err)
		if !s.sessions.IsOpen(connID) {
			return
		}
		f, ferr := jsonFrame(string(protocol.TypeError), protocol.NewError(errorText(stage)))
		if ferr == nil {
			writer.send(ctx, f)
		}
		return
	}
	s.metrics.ObserveStage(observability.StageTranscribe, time.Since(start))

	if !s.sessions.IsOpen(connID) {
		log.Printf("client %s closed before batch %d finished, dropping result", connID, b.Seq)
		return
	}
	msg := res.Message()
	f, err := jsonFrame(string(protocol.TypeTranscription), msg)
	if err != nil {
		log.Printf("encode transcription for %s: %v", connID, err)
		return
	}
	writer.send(ctx, f)
	s.deps.History.Record(ctx, history.Record{
		ConnectionID: connID,
		Kind:         history.KindTranscription,
		Text:         msg.Text,
		Language:     msg.Language,
		Confidence:   msg.Confidence,
	})
}

func errorText(stage string) string {
	switch stage {
	case transcribe.StageConvert:
		return protocol.ErrTextConvert
	case transcribe.StageRecognize:
		return protocol.ErrTextRecognize
	default:
		return protocol.ErrTextProcessing
	}
}
