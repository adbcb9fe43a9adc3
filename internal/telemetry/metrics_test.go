package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/insight"
	"github.com/rendis/nexus/pkg/schema"
)

type fakeHub struct{}

func (fakeHub) Subscribers() int { return 3 }
func (fakeHub) Dropped() uint64  { return 7 }

func TestMachineMetrics(t *testing.T) {
	m := New(nil)
	machine := engine.NewMachine(engine.MachineOptions{})
	machine.OnTransition(m.TransitionHook())

	snap, err := machine.Tick(context.Background())
	require.NoError(t, err)
	m.ObserveTick(snap)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("executor_sql", "EXECUTING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("planner", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodeStatus.WithLabelValues("executor_rag", "EXECUTING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.nodeStatus.WithLabelValues("executor_rag", "IDLE")))

	reset, err := machine.Reset(context.Background())
	require.NoError(t, err)
	m.ObserveSnapshot(reset)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodeStatus.WithLabelValues("planner", "EXECUTING")))
}

func TestLogEntryMetrics(t *testing.T) {
	m := New(nil)
	m.ObserveLogEntry(schema.LogEntry{Level: schema.LevelWarn, Source: "Planner"})
	m.ObserveLogEntry(schema.LogEntry{Level: schema.LevelWarn, Source: "Planner"})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.logEntries.WithLabelValues("WARN", "Planner")))
}

type stubGenerator struct{ err error }

func (stubGenerator) Name() string { return "stub" }

func (s stubGenerator) Summarize(context.Context, string, schema.Lang) (string, error) {
	return "ok", s.err
}

func (s stubGenerator) GenerateAgentConfig(context.Context, string, schema.Lang) (*schema.AgentConfig, error) {
	return nil, s.err
}

func TestInstrumentGenerator(t *testing.T) {
	m := New(nil)
	assert.Nil(t, m.InstrumentGenerator(nil))

	var g insight.Generator = m.InstrumentGenerator(stubGenerator{})
	assert.Equal(t, "stub", g.Name())
	_, _ = g.Summarize(context.Background(), "x", schema.LangEN)

	g = m.InstrumentGenerator(stubGenerator{err: errors.New("down")})
	_, _ = g.GenerateAgentConfig(context.Background(), "x", schema.LangEN)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("summary", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("agent_config", "error")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New(fakeHub{})
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/42", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpReqs.WithLabelValues("GET", "/api/items/{id}", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "nexus_stream_subscribers 3")
	assert.Contains(t, body, "nexus_stream_dropped_total 7")
	assert.True(t, strings.Contains(body, `nexus_http_requests_total{code="418",method="GET",route="/api/items/{id}"} 1`))
}
