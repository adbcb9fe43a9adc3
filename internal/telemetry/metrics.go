// Package telemetry exposes Prometheus metrics for the machine, the log feed,
// the generation service and the HTTP panel.
package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/insight"
	"github.com/rendis/nexus/pkg/schema"
)

const namespace = "nexus"

// HubStats is the subset of the memory hub the metrics read.
type HubStats interface {
	Subscribers() int
	Dropped() uint64
}

// Metrics owns a private registry so tests and multiple servers never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	ticks       prometheus.Counter
	transitions *prometheus.CounterVec
	nodeStatus  *prometheus.GaugeVec
	cycles      prometheus.Gauge
	logEntries  *prometheus.CounterVec
	generations *prometheus.CounterVec
	genDuration *prometheus.HistogramVec
	httpReqs    *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New registers every collector. A nil hub skips the stream gauges.
func New(hub HubStats) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Machine ticks applied.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "node_transitions_total",
			Help: "Node status changes by node and target status.",
		}, []string{"node_id", "to"}),
		nodeStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "node_status",
			Help: "1 for the current status of each node, 0 otherwise.",
		}, []string{"node_id", "status"}),
		cycles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cycles",
			Help: "Completed pipeline cycles in the current run.",
		}),
		logEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "log_entries_total",
			Help: "Simulated log entries by level and source.",
		}, []string{"level", "source"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "generation_requests_total",
			Help: "Generation calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		genDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "generation_duration_seconds",
			Help:    "Latency of generation calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Panel API requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "Panel API latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.ticks, m.transitions, m.nodeStatus, m.cycles, m.logEntries,
		m.generations, m.genDuration, m.httpReqs, m.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if hub != nil {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Name: "stream_subscribers",
				Help: "Live stream subscribers.",
			}, func() float64 { return float64(hub.Subscribers()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Name: "stream_dropped_total",
				Help: "Events dropped because a subscriber was slow.",
			}, func() float64 { return float64(hub.Dropped()) }),
		)
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TransitionHook counts node transitions; register with Machine.OnTransition.
func (m *Metrics) TransitionHook() engine.TransitionHook {
	return func(_ context.Context, c engine.Change) {
		m.transitions.WithLabelValues(string(c.Node), string(c.To)).Inc()
	}
}

// ObserveTick counts a tick and refreshes the status gauges.
func (m *Metrics) ObserveTick(snap engine.Snapshot) {
	m.ticks.Inc()
	m.ObserveSnapshot(snap)
}

// ObserveSnapshot refreshes the status gauges without counting a tick.
func (m *Metrics) ObserveSnapshot(snap engine.Snapshot) {
	m.cycles.Set(float64(snap.Cycle))
	statuses := []schema.Status{
		schema.StatusIdle, schema.StatusThinking, schema.StatusExecuting,
		schema.StatusWaiting, schema.StatusError, schema.StatusCompleted,
	}
	for id, current := range snap.Vector.Map() {
		for _, s := range statuses {
			v := 0.0
			if s == current {
				v = 1
			}
			m.nodeStatus.WithLabelValues(string(id), string(s)).Set(v)
		}
	}
}

// ObserveLogEntry counts one feed entry; pass as feed.Deps.OnEntry.
func (m *Metrics) ObserveLogEntry(e schema.LogEntry) {
	m.logEntries.WithLabelValues(string(e.Level), e.Source).Inc()
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpReqs.WithLabelValues(r.Method, route, strconv.Itoa(rec.code)).Inc()
		m.httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent events streaming through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// InstrumentGenerator wraps g so every call is counted and timed.
func (m *Metrics) InstrumentGenerator(g insight.Generator) insight.Generator {
	if g == nil {
		return nil
	}
	return &instrumented{inner: g, m: m}
}

type instrumented struct {
	inner insight.Generator
	m     *Metrics
}

func (i *instrumented) Name() string { return i.inner.Name() }

func (i *instrumented) Summarize(ctx context.Context, logs string, lang schema.Lang) (string, error) {
	start := time.Now()
	out, err := i.inner.Summarize(ctx, logs, lang)
	i.observe("summary", start, err)
	return out, err
}

func (i *instrumented) GenerateAgentConfig(ctx context.Context, description string, lang schema.Lang) (*schema.AgentConfig, error) {
	start := time.Now()
	cfg, err := i.inner.GenerateAgentConfig(ctx, description, lang)
	i.observe("agent_config", start, err)
	return cfg, err
}

func (i *instrumented) observe(kind string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.m.generations.WithLabelValues(kind, outcome).Inc()
	i.m.genDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
