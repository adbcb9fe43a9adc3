package panel

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/nexus/internal/diagram"
	"github.com/rendis/nexus/internal/feed"
	"github.com/rendis/nexus/internal/metrics"
	"github.com/rendis/nexus/internal/ontology"
	"github.com/rendis/nexus/internal/store"
	"github.com/rendis/nexus/internal/validation"
	"github.com/rendis/nexus/pkg/schema"
)

const maxLayoutIterations = 2000

// handleInsight summarizes a log snapshot. Without a snapshot the latest
// from_feed entries are used, and without those the canned system snapshot.
func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Snapshot string `json:"snapshot"`
		Lang     string `json:"lang"`
		FromFeed int    `json:"from_feed"`
	}
	if err := s.decodeBody(r, validation.SchemaInsightRequest, &body); err != nil {
		writeFailure(w, err)
		return
	}

	snapshot := strings.TrimSpace(body.Snapshot)
	if snapshot == "" && body.FromFeed > 0 && s.deps.Feed != nil {
		snapshot = feed.Format(s.deps.Feed.Latest(body.FromFeed))
	}
	if snapshot == "" {
		snapshot = metrics.LogSnapshot
	}

	ins, err := s.deps.Insight.Analyze(r.Context(), snapshot, s.lang(r, body.Lang))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ins)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	filter := store.InsightFilter{Limit: queryInt(r, "limit", 20)}
	if l := r.URL.Query().Get("lang"); l != "" {
		filter.Lang = schema.ParseLang(l)
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = &t
	}
	insights, err := s.deps.Archive.ListInsights(r.Context(), filter)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

// handleArchitect generates an agent config. On generation failure the error
// body carries the localized reply under details.reply.
func (s *Server) handleArchitect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Description string `json:"description"`
		Lang        string `json:"lang"`
	}
	if err := s.decodeBody(r, validation.SchemaArchitectRequest, &body); err != nil {
		writeFailure(w, err)
		return
	}

	res, err := s.deps.Insight.Architect(r.Context(), body.Description, s.lang(r, body.Lang))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	filter := store.AgentConfigFilter{
		Name:  r.URL.Query().Get("name"),
		Limit: queryInt(r, "limit", 20),
	}
	switch r.URL.Query().Get("mock") {
	case "true":
		v := true
		filter.Mock = &v
	case "false":
		v := false
		filter.Mock = &v
	}
	configs, err := s.deps.Archive.ListAgentConfigs(r.Context(), filter)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": configs})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	cfg, err := s.deps.Archive.GetAgentConfig(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleDashboard returns the chart series with live jitter and the stat cards.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.rngMu.Lock()
	d := metrics.Live(s.lang(r, ""), s.rng, s.deps.Now())
	s.rngMu.Unlock()
	writeJSON(w, http.StatusOK, d)
}

// handleOntology returns the graph together with laid-out coordinates.
func (s *Server) handleOntology(w http.ResponseWriter, r *http.Request) {
	g := s.deps.Ontology
	opts := ontology.LayoutOptions{
		Width:      float64(queryInt(r, "width", 600)),
		Height:     float64(queryInt(r, "height", 400)),
		Iterations: min(queryInt(r, "iterations", 300), maxLayoutIterations),
		Seed:       uint64(max(queryInt(r, "seed", 0), 0)),
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes":  g.Nodes(),
		"links":  g.Links(),
		"layout": g.Layout(opts),
	})
}

func (s *Server) handleOntologyDiagram(w http.ResponseWriter, r *http.Request) {
	s.renderDiagram(w, r, diagram.BuildOntology(s.deps.Ontology))
}

func (s *Server) handleNeighbours(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ids, err := s.deps.Ontology.Neighbours(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "neighbours": ids})
}
