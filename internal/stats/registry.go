// Package stats exposes the runtime's counters through
// github.com/prometheus/client_golang: a process-wide Prometheus
// Registry any component can report ON_STATS events into.
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry owns the process's Prometheus collectors. One Registry is
// created by the main context (internal/pipeline) and shared by every
// component.
type Registry struct {
	reg *prometheus.Registry

	droppedFrames *prometheus.CounterVec
	fifoDepth     *prometheus.GaugeVec
	dispatchLat   *prometheus.HistogramVec
	ioErrors      *prometheus.CounterVec
}

// New builds a Registry with its collectors registered.
func New() *Registry {
	s := &Registry{
		reg: prometheus.NewRegistry(),
		droppedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txproto",
			Name:      "dropped_frames_total",
			Help:      "Frames or packets dropped by a bounded FIFO under BlockNoInput=false policy.",
		}, []string{"component", "kind"}),
		fifoDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "txproto",
			Name:      "fifo_depth",
			Help:      "Current element count of a bounded FIFO.",
		}, []string{"component", "direction"}),
		dispatchLat: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "txproto",
			Name:      "event_dispatch_seconds",
			Help:      "Wall-clock latency of an events.List Dispatch/DispatchAll call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		ioErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txproto",
			Name:      "io_errors_total",
			Help:      "Errors surfaced by an iosys backend (ON_ERROR dispatch count).",
		}, []string{"api"}),
	}
	s.reg.MustRegister(s.droppedFrames, s.fifoDepth, s.dispatchLat, s.ioErrors)
	return s
}

// Registerer exposes the underlying prometheus.Registerer for a
// component that needs to register its own collector (e.g. a codec
// wrapper exporting bitrate).
func (s *Registry) Registerer() prometheus.Registerer { return s.reg }

// Gatherer exposes the underlying prometheus.Gatherer for wiring an
// HTTP /metrics handler (promhttp.HandlerFor).
func (s *Registry) Gatherer() prometheus.Gatherer { return s.reg }

// DroppedFrame increments the dropped-frame counter for component/kind
// (e.g. "encoder", "video"). fifo.FIFO does not call it; a queue's own
// drops are counted by FIFO.Dropped.
func (s *Registry) DroppedFrame(component, kind string) {
	s.droppedFrames.WithLabelValues(component, kind).Inc()
}

// SetFIFODepth records a FIFO's current element count.
func (s *Registry) SetFIFODepth(component, direction string, depth int) {
	s.fifoDepth.WithLabelValues(component, direction).Set(float64(depth))
}

// ObserveDispatch records how long an events.List dispatch call took.
func (s *Registry) ObserveDispatch(phase string, d time.Duration) {
	s.dispatchLat.WithLabelValues(phase).Observe(d.Seconds())
}

// IOError increments the per-API-id error counter.
func (s *Registry) IOError(api string) {
	s.ioErrors.WithLabelValues(api).Inc()
}
