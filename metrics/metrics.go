// Package metrics exports particle engine statistics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gekko3d/particles/particlert/rt/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors is the set of particle metrics registered on one registry.
type Collectors struct {
	Alive          *prometheus.GaugeVec
	Capacity       *prometheus.GaugeVec
	Emitted        *prometheus.CounterVec
	Frames         *prometheus.CounterVec
	SortDispatches *prometheus.CounterVec
	ReadbackErrors *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec

	mu   sync.Mutex
	last map[string]engine.Stats
}

// NewCollectors registers the particle metrics on reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		Alive: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "particles_alive",
				Help: "Live particles after the last frame",
			},
			[]string{"engine"},
		),
		Capacity: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "particles_capacity",
				Help: "Normalized particle capacity",
			},
			[]string{"engine"},
		),
		Emitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "particles_emitted_total",
				Help: "Particles emitted",
			},
			[]string{"engine"},
		),
		Frames: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "particles_frames_total",
				Help: "Frames by outcome",
			},
			[]string{"engine", "outcome"},
		),
		SortDispatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "particles_sort_dispatches_total",
				Help: "Bitonic sort kernel dispatches",
			},
			[]string{"engine"},
		),
		ReadbackErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "particles_readback_errors_total",
				Help: "Failed alive count readbacks",
			},
			[]string{"engine"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "particles_stage_seconds",
				Help:    "CPU time spent recording each pipeline stage",
				Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
			},
			[]string{"engine", "stage"},
		),
		last: make(map[string]engine.Stats),
	}
}

// Observe records the state of e after a frame. Counters advance by the
// difference to the previous observation of the same engine.
func (c *Collectors) Observe(e *engine.Engine) {
	name := e.Label()
	st := e.Stats()

	c.mu.Lock()
	prev := c.last[name]
	c.last[name] = st
	c.mu.Unlock()

	c.Alive.WithLabelValues(name).Set(float64(e.Alive()))
	c.Capacity.WithLabelValues(name).Set(float64(e.Capacity()))
	c.Emitted.WithLabelValues(name).Add(float64(st.Emitted - prev.Emitted))
	c.Frames.WithLabelValues(name, "simulated").Add(float64(st.SimulatedFrames - prev.SimulatedFrames))
	c.Frames.WithLabelValues(name, "skipped").Add(float64(st.SkippedFrames - prev.SkippedFrames))
	c.Frames.WithLabelValues(name, "sorted").Add(float64(st.SortedFrames - prev.SortedFrames))
	c.SortDispatches.WithLabelValues(name).Add(float64(st.SortDispatches - prev.SortDispatches))
	c.ReadbackErrors.WithLabelValues(name).Add(float64(st.ReadbackErrors - prev.ReadbackErrors))

	if st.Frames == prev.Frames {
		return
	}
	for stage, d := range e.Profiler().Durations() {
		c.StageDuration.WithLabelValues(name, stage).Observe(d.Seconds())
	}
}

// Forget drops every series of an engine that was closed.
func (c *Collectors) Forget(name string) {
	c.mu.Lock()
	delete(c.last, name)
	c.mu.Unlock()

	labels := prometheus.Labels{"engine": name}
	c.Alive.DeletePartialMatch(labels)
	c.Capacity.DeletePartialMatch(labels)
	c.Emitted.DeletePartialMatch(labels)
	c.Frames.DeletePartialMatch(labels)
	c.SortDispatches.DeletePartialMatch(labels)
	c.ReadbackErrors.DeletePartialMatch(labels)
	c.StageDuration.DeletePartialMatch(labels)
}

// Logger receives serve errors.
type Logger interface {
	Errorf(format string, args ...any)
}

// Server serves /metrics for a registry.
type Server struct {
	srv *http.Server
	log Logger
}

// NewServer builds a server for g. Serve errors go to log, or are dropped
// when log is nil.
func NewServer(addr string, g prometheus.Gatherer, log Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{ErrorLog: errorLog{log}}))
	return &Server{
		srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		log: log,
	}
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.log != nil {
				s.log.Errorf("Metrics server exited: %v", err)
			}
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// errorLog adapts Logger to promhttp's Println sink.
type errorLog struct{ log Logger }

func (l errorLog) Println(v ...any) {
	if l.log != nil {
		l.log.Errorf("metrics: %s", fmt.Sprint(v...))
	}
}
