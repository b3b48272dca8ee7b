package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. Each instance
// owns its registry so tests can build several servers in one process.
type Metrics struct {
	registry *prometheus.Registry
	stages   *stageWindow

	ActiveConnections *prometheus.GaugeVec
	ConnectionEvents  *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	BatchesDispatched prometheus.Counter
	BatchesDropped    prometheus.Counter
	OrphanedFrames    prometheus.Counter
	PipelineErrors    *prometheus.CounterVec
	SynthesisRequests *prometheus.CounterVec
	SweptFiles        prometheus.Counter
	StageLatency      *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stages:   newStageWindow(256),
		ActiveConnections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of open websocket connections by kind.",
		}, []string{"kind"}),
		ConnectionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_events_total",
			Help:      "Connection lifecycle events by kind and event.",
		}, []string{"kind", "event"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		BatchesDispatched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asr_batches_dispatched_total",
			Help:      "Audio batches handed to the transcription pipeline.",
		}),
		BatchesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asr_batches_dropped_total",
			Help:      "Audio batches dropped because a connection queue was full.",
		}),
		OrphanedFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asr_orphaned_frames_total",
			Help:      "Frames discarded in partial batches at disconnect.",
		}),
		PipelineErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Pipeline failures by stage.",
		}, []string{"stage"}),
		SynthesisRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_requests_total",
			Help:      "Synthesis requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		SweptFiles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_files_total",
			Help:      "Aged files removed by the cleanup sweep.",
		}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Pipeline stage latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"stage"}),
	}
}

// ObserveStage records a stage duration in both the histogram and the rolling window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.stages.Observe(stage, ms)
}

// StageSnapshot returns rolling percentiles for every observed stage.
func (m *Metrics) StageSnapshot() StageSnapshot {
	return m.stages.Snapshot()
}

// ResetStages clears the rolling window.
func (m *Metrics) ResetStages() {
	m.stages.Reset()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
