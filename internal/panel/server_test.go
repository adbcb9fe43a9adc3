package panel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/expressions"
	"github.com/rendis/nexus/internal/feed"
	"github.com/rendis/nexus/internal/insight"
	"github.com/rendis/nexus/internal/metrics"
	"github.com/rendis/nexus/internal/scheduler"
	"github.com/rendis/nexus/internal/store"
	"github.com/rendis/nexus/internal/streaming"
	"github.com/rendis/nexus/internal/telemetry"
	"github.com/rendis/nexus/internal/validation"
	"github.com/rendis/nexus/pkg/schema"
)

type fakeArchive struct {
	configs  map[string]*schema.StoredAgentConfig
	insights []*schema.Insight
	filter   store.AgentConfigFilter
}

func (f *fakeArchive) ListEvents(context.Context, store.EventFilter) ([]*store.Event, error) {
	return []*store.Event{{ID: 1, Topic: schema.TopicFSM, Type: schema.EventTick}}, nil
}

func (f *fakeArchive) ListInsights(context.Context, store.InsightFilter) ([]*schema.Insight, error) {
	return f.insights, nil
}

func (f *fakeArchive) GetAgentConfig(_ context.Context, id string) (*schema.StoredAgentConfig, error) {
	cfg, ok := f.configs[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "agent config %s not found", id)
	}
	return cfg, nil
}

func (f *fakeArchive) ListAgentConfigs(_ context.Context, filter store.AgentConfigFilter) ([]*schema.StoredAgentConfig, error) {
	f.filter = filter
	out := make([]*schema.StoredAgentConfig, 0, len(f.configs))
	for _, c := range f.configs {
		out = append(out, c)
	}
	return out, nil
}

type failingGenerator struct{}

func (failingGenerator) Name() string { return "failing" }

func (failingGenerator) Summarize(context.Context, string, schema.Lang) (string, error) {
	return "", errors.New("upstream down")
}

func (failingGenerator) GenerateAgentConfig(context.Context, string, schema.Lang) (*schema.AgentConfig, error) {
	return nil, errors.New("upstream down")
}

type harness struct {
	server  *httptest.Server
	handler http.Handler
	driver  *scheduler.Driver
	feed    *feed.Feed
	hub     *streaming.MemoryHub
	archive *fakeArchive
}

func newHarness(t *testing.T, gen insight.Generator) *harness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	hub := streaming.NewMemoryHub()

	machine := engine.NewMachine(engine.MachineOptions{Logger: logger})
	driver := scheduler.NewDriver(scheduler.DriverDeps{Machine: machine, Hub: hub, Logger: logger, Period: time.Hour})
	t.Cleanup(driver.Stop)

	fd := feed.New(feed.Deps{Generator: feed.NewGenerator(7, nil), Hub: hub, Logger: logger})
	for range 5 {
		fd.Emit(context.Background())
	}

	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)
	queries, err := expressions.NewRegistry()
	require.NoError(t, err)

	archive := &fakeArchive{configs: map[string]*schema.StoredAgentConfig{
		"a1": {ID: "a1", Config: schema.AgentConfig{Name: "Ledger Bot"}},
	}}

	srv := NewServer(Deps{
		Driver:    driver,
		Feed:      fd,
		Insight:   insight.NewService(insight.Deps{Generator: gen, Hub: hub, Logger: logger}),
		Archive:   archive,
		Hub:       hub,
		Validator: v,
		Queries:   queries,
		Metrics:   telemetry.New(hub),
		Logger:    logger,
		Seed:      1,
	})
	h := srv.Handler()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &harness{server: ts, handler: h, driver: driver, feed: fd, hub: hub, archive: archive}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	code, _ := e["code"].(string)
	return code
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["configured"])
	assert.Equal(t, 5.0, body["feed_size"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestFSMView(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/api/fsm?lang=zh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view fsmView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.Running)
	assert.Equal(t, time.Hour.Milliseconds(), view.PeriodMS)
	assert.Len(t, view.Nodes, engine.NodeCount)
	assert.Len(t, view.Edges, 7)
	assert.Equal(t, schema.StatusExecuting, view.Nodes[1].Status)
}

func TestControlTickAndReset(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/fsm/control", `{"action":"tick"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, uint64(1), h.driver.Snapshot().Tick)
	assert.Equal(t, schema.StatusExecuting, h.driver.Snapshot().Vector.Status(engine.NodeExecutorSQL))

	rec = h.do(t, http.MethodPost, "/api/fsm/control", `{"action":"reset"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.Initial(), h.driver.Snapshot().Vector)
}

func TestControlStartPause(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/fsm/control", `{"action":"start"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.driver.Running())

	rec = h.do(t, http.MethodPost, "/api/fsm/control", `{"action":"start"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, schema.ErrCodeConflict, errorCode(t, rec))

	rec = h.do(t, http.MethodPost, "/api/fsm/control", `{"action":"pause"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, h.driver.Running())
}

func TestControlRejectsUnknownAction(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/fsm/control", `{"action":"fly"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, schema.ErrCodeValidation, errorCode(t, rec))
}

func TestFSMDiagramFormats(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/fsm/diagram", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "graph LR"))

	rec = h.do(t, http.MethodGet, "/api/fsm/diagram?format=ascii", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "[RUN]")

	rec = h.do(t, http.MethodGet, "/api/fsm/diagram?format=svg", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogsAndQuery(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/logs?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["entries"], 3)

	rec = h.do(t, http.MethodPost, "/api/logs/query", `{"expression":"level != \"NOPE\""}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "expr", body["engine"])
	assert.Len(t, body["entries"], 5)

	rec = h.do(t, http.MethodPost, "/api/logs/query", `{"engine":"jq","expression":".level == \"NOPE\""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["entries"])

	rec = h.do(t, http.MethodPost, "/api/logs/query", `{"engine":"cel","expression":"entry.level"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInsightDefaultsToSystemSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/insight", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var ins schema.Insight
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ins))
	assert.Equal(t, metrics.LogSnapshot, ins.Snapshot)
	assert.Equal(t, insight.NoKeySummary, ins.Summary)
}

func TestInsightFromFeed(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/insight", `{"from_feed":2,"lang":"zh"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var ins schema.Insight
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ins))
	assert.Equal(t, feed.Format(h.feed.Latest(2)), ins.Snapshot)
	assert.Equal(t, schema.LangZH, ins.Lang)
}

func TestInsightFallbackOnFailure(t *testing.T) {
	h := newHarness(t, failingGenerator{})
	rec := h.do(t, http.MethodPost, "/api/insight", `{"snapshot":"cpu 99%"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["fallback"])
}

func TestArchitectMock(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/architect", `{"description":"churn analyst","lang":"en"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res insight.ArchitectResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Config.Mock)
	assert.Equal(t, "Nexus Data Analyst", res.Config.Config.Name)
	assert.Contains(t, res.Reply, "**Nexus Data Analyst**")
}

func TestArchitectFailureCarriesReply(t *testing.T) {
	h := newHarness(t, failingGenerator{})
	rec := h.do(t, http.MethodPost, "/api/architect", `{"description":"x","lang":"zh"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decode(t, rec)
	e := body["error"].(map[string]any)
	assert.Equal(t, schema.ErrCodeGeneration, e["code"])
	details := e["details"].(map[string]any)
	assert.Equal(t, insight.ArchitectUnavailable(schema.LangZH), details["reply"])
}

func TestArchitectValidation(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/architect", `{"lang":"en"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgents(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/agents?mock=false&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["agents"], 1)
	require.NotNil(t, h.archive.filter.Mock)
	assert.False(t, *h.archive.filter.Mock)
	assert.Equal(t, 5, h.archive.filter.Limit)

	rec = h.do(t, http.MethodGet, "/api/agents/a1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/agents/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/api/events?topic=fsm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["events"], 1)
}

func TestDashboard(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/api/metrics?lang=zh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var d metrics.Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Len(t, d.Series, len(metrics.Series()))
	assert.Equal(t, metrics.Cards(schema.LangZH), d.Cards)
}

func TestOntology(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/ontology?iterations=50", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["nodes"], 14)
	assert.Len(t, body["links"], 13)
	assert.Len(t, body["layout"], 14)

	rec = h.do(t, http.MethodGet, "/api/ontology/diagram", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "graph LR")

	rec = h.do(t, http.MethodGet, "/api/ontology/nodes/nope/neighbours", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrometheusEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, http.MethodGet, "/api/fsm", "")
	rec := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/fsm"`)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodOptions, "/api/fsm/control", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSSEStreamsFSMEvents(t *testing.T) {
	h := newHarness(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.server.URL+"/sse/events?topic=fsm&type=tick", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	h.feed.Emit(ctx)
	_, err = h.driver.Tick(ctx)
	require.NoError(t, err)

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			break
		}
	}
	assert.Equal(t, "event: tick\n", line)

	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(data, "data: "))
	var ev streaming.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &ev))
	assert.Equal(t, schema.TopicFSM, ev.Topic)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"fsm", "logs"}, splitList("fsm, logs,"))
}
