// Package panel serves the dashboard JSON API and the live event stream.
package panel

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/expressions"
	"github.com/rendis/nexus/internal/feed"
	"github.com/rendis/nexus/internal/insight"
	"github.com/rendis/nexus/internal/logging"
	"github.com/rendis/nexus/internal/ontology"
	"github.com/rendis/nexus/internal/store"
	"github.com/rendis/nexus/internal/streaming"
	"github.com/rendis/nexus/internal/telemetry"
	"github.com/rendis/nexus/internal/validation"
	"github.com/rendis/nexus/pkg/schema"
)

// Controller drives the pipeline machine. Satisfied by scheduler.Driver.
type Controller interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context)
	Resume(ctx context.Context) error
	Tick(ctx context.Context) (engine.Snapshot, error)
	Reset(ctx context.Context) (engine.Snapshot, error)
	Running() bool
	Snapshot() engine.Snapshot
	Period() time.Duration
}

// Archive reads persisted history. Satisfied by store.Store.
type Archive interface {
	ListEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
	ListInsights(ctx context.Context, filter store.InsightFilter) ([]*schema.Insight, error)
	GetAgentConfig(ctx context.Context, id string) (*schema.StoredAgentConfig, error)
	ListAgentConfigs(ctx context.Context, filter store.AgentConfigFilter) ([]*schema.StoredAgentConfig, error)
}

// Deps holds the collaborators of the panel. Archive and Metrics are optional.
type Deps struct {
	Driver    Controller
	Feed      *feed.Feed
	Insight   *insight.Service
	Archive   Archive
	Hub       streaming.EventHub
	Validator validation.Validator
	Queries   *expressions.Registry
	Ontology  *ontology.Graph
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
	// Lang is used when a request names no language.
	Lang schema.Lang
	// MermaidBinDir holds an optional mermaid-ascii binary for ascii diagrams.
	MermaidBinDir string
	Seed          uint64
	Now           func() time.Time
}

// Server is the dashboard API.
type Server struct {
	deps Deps

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Lang == "" {
		deps.Lang = schema.LangEN
	}
	if deps.Ontology == nil {
		deps.Ontology = ontology.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Server{
		deps: deps,
		rng:  rand.New(rand.NewPCG(deps.Seed, deps.Seed^0x9e3779b97f4a7c15)),
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.correlate)
	r.Use(middleware.Recoverer)
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
	}
	r.Use(enableCORS)

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/fsm", s.handleFSM)
		r.Post("/fsm/control", s.handleControl)
		r.Get("/fsm/diagram", s.handleFSMDiagram)
		r.Get("/events", s.handleEvents)

		r.Get("/logs", s.handleLogs)
		r.Post("/logs/query", s.handleLogQuery)

		r.Post("/insight", s.handleInsight)
		r.Get("/insights", s.handleInsights)
		r.Post("/architect", s.handleArchitect)
		r.Get("/agents", s.handleAgents)
		r.Get("/agents/{id}", s.handleAgent)

		r.Get("/metrics", s.handleDashboard)
		r.Get("/ontology", s.handleOntology)
		r.Get("/ontology/diagram", s.handleOntologyDiagram)
		r.Get("/ontology/nodes/{id}/neighbours", s.handleNeighbours)
	})

	r.Get("/sse/events", s.handleSSE)
	return r
}

// correlate copies the chi request id into the logging context.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logging.WithRequestID(ctx, id)
			w.Header().Set("X-Request-Id", id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	size, capacity, total := 0, 0, uint64(0)
	if s.deps.Feed != nil {
		size, capacity, total = s.deps.Feed.Stats()
	}
	resp := map[string]any{
		"status":        "ok",
		"running":       s.deps.Driver != nil && s.deps.Driver.Running(),
		"feed_size":     size,
		"feed_capacity": capacity,
		"feed_total":    total,
	}
	if s.deps.Insight != nil {
		resp["provider"] = s.deps.Insight.Provider()
		resp["configured"] = s.deps.Insight.Configured()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) lang(r *http.Request, body string) schema.Lang {
	if body != "" {
		return schema.ParseLang(body)
	}
	if q := r.URL.Query().Get("lang"); q != "" {
		return schema.ParseLang(q)
	}
	return s.deps.Lang
}
