package panel

import (
	"context"
	"net/http"
	"strings"

	"github.com/rendis/nexus/internal/diagram"
	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/feed"
	"github.com/rendis/nexus/internal/store"
	"github.com/rendis/nexus/internal/validation"
	"github.com/rendis/nexus/pkg/schema"
)

const defaultQueryEngine = "expr"

// fsmView is the graph as the dashboard draws it.
type fsmView struct {
	Snapshot engine.Snapshot `json:"snapshot"`
	Running  bool            `json:"running"`
	PeriodMS int64           `json:"period_ms"`
	Nodes    []engine.Node   `json:"nodes"`
	Edges    []engine.Edge   `json:"edges"`
}

func (s *Server) view(snap engine.Snapshot, lang schema.Lang) fsmView {
	return fsmView{
		Snapshot: snap,
		Running:  s.deps.Driver.Running(),
		PeriodMS: s.deps.Driver.Period().Milliseconds(),
		Nodes:    snap.Nodes(lang),
		Edges:    engine.Edges(),
	}
}

func (s *Server) handleFSM(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view(s.deps.Driver.Snapshot(), s.lang(r, "")))
}

// handleControl applies start, pause, resume, reset or a single manual tick.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	if err := s.decodeBody(r, validation.SchemaControlRequest, &body); err != nil {
		writeFailure(w, err)
		return
	}

	// The loop outlives the request, so it must not inherit its context.
	ctx := r.Context()
	var err error
	snap := s.deps.Driver.Snapshot()
	switch body.Action {
	case "start":
		err = s.deps.Driver.Start(context.WithoutCancel(ctx))
	case "pause":
		s.deps.Driver.Pause(ctx)
	case "resume":
		err = s.deps.Driver.Resume(context.WithoutCancel(ctx))
	case "reset":
		snap, err = s.deps.Driver.Reset(ctx)
	case "tick":
		snap, err = s.deps.Driver.Tick(ctx)
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	if body.Action == "start" || body.Action == "pause" || body.Action == "resume" {
		snap = s.deps.Driver.Snapshot()
	}
	s.deps.Logger.InfoContext(ctx, "fsm control", "action", body.Action, "tick", snap.Tick)

	writeJSON(w, http.StatusOK, map[string]any{
		"action": body.Action,
		"fsm":    s.view(snap, s.lang(r, "")),
	})
}

func (s *Server) handleFSMDiagram(w http.ResponseWriter, r *http.Request) {
	model := diagram.Build(s.deps.Driver.Snapshot(), s.lang(r, ""))
	s.renderDiagram(w, r, model)
}

// renderDiagram writes model as mermaid (default), ascii or png.
func (s *Server) renderDiagram(w http.ResponseWriter, r *http.Request, model *diagram.DiagramModel) {
	switch format := r.URL.Query().Get("format"); format {
	case "", "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(diagram.RenderMermaid(model)))
	case "ascii":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(diagram.RenderASCIIAuto(r.Context(), model, s.deps.MermaidBinDir)))
	case "png":
		img, err := diagram.RenderImage(r.Context(), model)
		if err != nil {
			s.deps.Logger.ErrorContext(r.Context(), "render diagram", "error", err)
			writeError(w, http.StatusInternalServerError, "render failed")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	default:
		writeError(w, http.StatusBadRequest, "format must be one of mermaid, ascii, png")
	}
}

// handleEvents lists persisted events matching the query filters.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "event log not configured")
		return
	}
	q := r.URL.Query()
	events, err := s.deps.Archive.ListEvents(r.Context(), store.EventFilter{
		RunID:  q.Get("run_id"),
		Topic:  q.Get("topic"),
		Type:   q.Get("type"),
		NodeID: q.Get("node_id"),
		Limit:  queryInt(r, "limit", 100),
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", feed.DefaultCapacity)
	entries := s.deps.Feed.Latest(limit)
	if level := strings.ToUpper(r.URL.Query().Get("level")); level != "" {
		kept := entries[:0:0]
		for _, e := range entries {
			if string(e.Level) == level {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleLogQuery filters the buffered entries with a cel, expr or jq expression.
func (s *Server) handleLogQuery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Engine     string `json:"engine"`
		Expression string `json:"expression"`
	}
	if err := s.decodeBody(r, validation.SchemaQueryRequest, &body); err != nil {
		writeFailure(w, err)
		return
	}
	if body.Engine == "" {
		body.Engine = defaultQueryEngine
	}
	entries, err := s.deps.Queries.Filter(r.Context(), body.Engine, body.Expression, s.deps.Feed.Entries())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"engine":  body.Engine,
		"entries": entries,
	})
}
