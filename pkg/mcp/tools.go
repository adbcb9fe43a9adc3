package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"

	"github.com/rendis/nexus/internal/diagram"
	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/feed"
	"github.com/rendis/nexus/internal/store"
	"github.com/rendis/nexus/pkg/schema"
)

const (
	defaultAnalyzeEntries = 10
	defaultQueryEngine    = "expr"
)

func (s *NexusServer) lang(req mcp.CallToolRequest) schema.Lang {
	if l := req.GetString("lang", ""); l != "" {
		return schema.ParseLang(l)
	}
	return s.deps.Lang
}

// handleSnapshot returns the status vector with display nodes and edges.
func (s *NexusServer) handleSnapshot(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Driver == nil {
		return mcp.NewToolResultError("pipeline not configured"), nil
	}
	snap := s.deps.Driver.Snapshot()
	return marshalResult(map[string]any{
		"snapshot": snap,
		"running":  s.deps.Driver.Running(),
		"nodes":    snap.Nodes(s.lang(req)),
		"edges":    engine.Edges(),
	})
}

// handleControl applies a control action to the driver.
func (s *NexusServer) handleControl(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Driver == nil {
		return mcp.NewToolResultError("pipeline not configured"), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	d := s.deps.Driver
	switch action {
	case "start":
		err = d.Start(context.WithoutCancel(ctx))
	case "pause":
		d.Pause(ctx)
	case "resume":
		err = d.Resume(context.WithoutCancel(ctx))
	case "reset":
		_, err = d.Reset(ctx)
	case "tick":
		_, err = d.Tick(ctx)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
	if err != nil {
		return toolError(action+" failed", err), nil
	}
	s.logger.Info("pipeline control", "action", action)

	return marshalResult(map[string]any{
		"action":   action,
		"running":  d.Running(),
		"snapshot": d.Snapshot(),
	})
}

// handleLogs returns the newest entries, filtered when an expression is given.
func (s *NexusServer) handleLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Feed == nil {
		return mcp.NewToolResultError("log feed not configured"), nil
	}
	entries := s.deps.Feed.Latest(mcp.ParseInt(req, "limit", feed.DefaultCapacity))

	expression := strings.TrimSpace(req.GetString("expression", ""))
	if expression == "" {
		return marshalResult(map[string]any{"entries": entries})
	}
	if s.deps.Queries == nil {
		return mcp.NewToolResultError("log queries not configured"), nil
	}
	engineName := req.GetString("engine", defaultQueryEngine)
	filtered, err := s.deps.Queries.Filter(ctx, engineName, expression, entries)
	if err != nil {
		return toolError("query failed", err), nil
	}
	return marshalResult(map[string]any{"engine": engineName, "entries": filtered})
}

// handleAnalyze summarizes a snapshot, defaulting to the latest feed entries.
func (s *NexusServer) handleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Insight == nil {
		return mcp.NewToolResultError("insight service not configured"), nil
	}
	snapshot := strings.TrimSpace(req.GetString("snapshot", ""))
	if snapshot == "" && s.deps.Feed != nil {
		snapshot = feed.Format(s.deps.Feed.Latest(mcp.ParseInt(req, "from_feed", defaultAnalyzeEntries)))
	}

	ins, err := s.deps.Insight.Analyze(ctx, snapshot, s.lang(req))
	if err != nil {
		return toolError("analysis failed", err), nil
	}
	return marshalResult(ins)
}

// handleArchitect generates an agent config. A failure returns the localized
// unavailable reply as the error text.
func (s *NexusServer) handleArchitect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Insight == nil {
		return mcp.NewToolResultError("insight service not configured"), nil
	}
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("description is required"), nil
	}

	res, err := s.deps.Insight.Architect(ctx, description, s.lang(req))
	if err != nil {
		var nerr *schema.NexusError
		if errors.As(err, &nerr) && nerr.Details != nil {
			if reply, ok := nerr.Details["reply"].(string); ok {
				return mcp.NewToolResultError(reply), nil
			}
		}
		return toolError("architect failed", err), nil
	}
	return marshalResult(res)
}

// handleDiagram renders the pipeline or the ontology graph.
func (s *NexusServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var model *diagram.DiagramModel
	switch target := req.GetString("target", "pipeline"); target {
	case "pipeline":
		if s.deps.Driver == nil {
			return mcp.NewToolResultError("pipeline not configured"), nil
		}
		model = diagram.Build(s.deps.Driver.Snapshot(), s.lang(req))
	case "ontology":
		model = diagram.BuildOntology(s.deps.Ontology)
	default:
		return mcp.NewToolResultError("target must be pipeline or ontology"), nil
	}

	switch req.GetString("format", "mermaid") {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "image":
		png, err := diagram.RenderImage(ctx, model)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", err)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	default:
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}
}

type eventQuery struct {
	RunID  string     `mapstructure:"run_id"`
	Topic  string     `mapstructure:"topic"`
	Type   string     `mapstructure:"event_type"`
	NodeID string     `mapstructure:"node_id"`
	Since  *time.Time `mapstructure:"since"`
	Limit  int        `mapstructure:"limit"`
}

type insightQuery struct {
	Lang  string     `mapstructure:"lang"`
	Since *time.Time `mapstructure:"since"`
	Limit int        `mapstructure:"limit"`
}

type agentQuery struct {
	Name  string `mapstructure:"name"`
	Mock  *bool  `mapstructure:"mock"`
	Limit int    `mapstructure:"limit"`
}

// handleHistory lists stored events, insights or agent configs.
func (s *NexusServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.History == nil {
		return mcp.NewToolResultError("store not configured"), nil
	}
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "events":
		q := eventQuery{Limit: 100}
		if err := decodeFilter(filter, &q); err != nil {
			return toolError("invalid filter", err), nil
		}
		events, err := s.deps.History.ListEvents(ctx, store.EventFilter{
			RunID: q.RunID, Topic: q.Topic, Type: q.Type, NodeID: q.NodeID, Since: q.Since, Limit: q.Limit,
		})
		if err != nil {
			return toolError("query failed", err), nil
		}
		return marshalResult(map[string]any{"events": events})
	case "insights":
		q := insightQuery{Limit: 20}
		if err := decodeFilter(filter, &q); err != nil {
			return toolError("invalid filter", err), nil
		}
		f := store.InsightFilter{Since: q.Since, Limit: q.Limit}
		if q.Lang != "" {
			f.Lang = schema.ParseLang(q.Lang)
		}
		insights, err := s.deps.History.ListInsights(ctx, f)
		if err != nil {
			return toolError("query failed", err), nil
		}
		return marshalResult(map[string]any{"insights": insights})
	case "agents":
		q := agentQuery{Limit: 20}
		if err := decodeFilter(filter, &q); err != nil {
			return toolError("invalid filter", err), nil
		}
		configs, err := s.deps.History.ListAgentConfigs(ctx, store.AgentConfigFilter{Name: q.Name, Mock: q.Mock, Limit: q.Limit})
		if err != nil {
			return toolError("query failed", err), nil
		}
		return marshalResult(map[string]any{"agents": configs})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleWatch subscribes the calling session to hub topics.
func (s *NexusServer) handleWatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return mcp.NewToolResultError("watch requires a client session"), nil
	}

	var topics []string
	if raw, ok := mcp.ParseArgument(req, "topics", nil).([]any); ok {
		for _, v := range raw {
			topic, _ := v.(string)
			switch topic {
			case schema.TopicFSM, schema.TopicLogs, schema.TopicInsight:
				topics = append(topics, topic)
			default:
				return mcp.NewToolResultError(fmt.Sprintf("unknown topic: %v", v)), nil
			}
		}
	}

	if len(topics) == 0 {
		s.sessions.Remove(session.SessionID())
	} else {
		s.sessions.Watch(session.SessionID(), topics)
	}
	return marshalResult(map[string]any{"session_id": session.SessionID(), "topics": topics})
}

// decodeFilter maps a loosely typed filter object onto dst. Unknown keys are rejected.
func decodeFilter(filter map[string]any, dst any) error {
	if len(filter) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(filter); err != nil {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}
	return nil
}

// toolError renders err as a tool error, prefixed with the structured code when present.
func toolError(prefix string, err error) *mcp.CallToolResult {
	var nerr *schema.NexusError
	if errors.As(err, &nerr) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: [%s] %s", prefix, nerr.Code, nerr.Message))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
