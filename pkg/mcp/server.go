// Package mcp exposes the pipeline visualizer as MCP tools.
package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/expressions"
	"github.com/rendis/nexus/internal/feed"
	"github.com/rendis/nexus/internal/insight"
	"github.com/rendis/nexus/internal/ontology"
	"github.com/rendis/nexus/internal/store"
	"github.com/rendis/nexus/internal/streaming"
	"github.com/rendis/nexus/pkg/schema"
)

// Version is reported to MCP clients.
var Version = "dev"

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

// History reads persisted records. Satisfied by store.Store.
type History interface {
	ListEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
	ListInsights(ctx context.Context, filter store.InsightFilter) ([]*schema.Insight, error)
	ListAgentConfigs(ctx context.Context, filter store.AgentConfigFilter) ([]*schema.StoredAgentConfig, error)
}

// Deps holds the dependencies of a NexusServer. History and Hub are optional.
type Deps struct {
	Driver   Controller
	Feed     *feed.Feed
	Insight  *insight.Service
	Queries  *expressions.Registry
	History  History
	Hub      streaming.EventHub
	Ontology *ontology.Graph
	Logger   *slog.Logger
	Lang     schema.Lang
}

// NexusServer wraps an MCP server with the nexus tool handlers.
type NexusServer struct {
	deps      Deps
	logger    *slog.Logger
	sessions  *SessionRegistry
	mcpServer *server.MCPServer
}

// NewNexusServer creates a NexusServer with every tool registered.
func NewNexusServer(deps Deps) *NexusServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Lang == "" {
		deps.Lang = schema.LangEN
	}
	if deps.Ontology == nil {
		deps.Ontology = ontology.Default()
	}

	s := &NexusServer{
		deps:     deps,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"nexus",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Nexus simulates an agent pipeline (planner, parallel SQL and RAG executors, aggregator). Use nexus.snapshot to read the node statuses, nexus.control to start, pause, resume, reset or tick the pipeline, nexus.logs to read or filter the event stream, nexus.analyze for a health summary, nexus.architect to design an agent config, nexus.diagram to draw the pipeline or ontology, nexus.history for stored records and nexus.watch to receive live events."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
// Watched hub events are forwarded as notifications while serving.
func (s *NexusServer) Serve(ctx context.Context) error {
	if s.deps.Hub != nil {
		notifier := NewHubNotifier(s.mcpServer, s.sessions, s.logger)
		if err := notifier.Start(ctx, s.deps.Hub); err != nil {
			return err
		}
		defer notifier.Stop()
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *NexusServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the watch registry.
func (s *NexusServer) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *NexusServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: snapshotTool(), Handler: s.handleSnapshot},
		{Tool: controlTool(), Handler: s.handleControl},
		{Tool: logsTool(), Handler: s.handleLogs},
		{Tool: analyzeTool(), Handler: s.handleAnalyze},
		{Tool: architectTool(), Handler: s.handleArchitect},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: watchTool(), Handler: s.handleWatch},
	}
}

// --- Tool definitions ---

func snapshotTool() mcp.Tool {
	return mcp.NewTool("nexus.snapshot",
		mcp.WithDescription("Read the pipeline node statuses"),
		mcp.WithString("lang", mcp.Enum("en", "zh"), mcp.Description("Label language (default en)")),
	)
}

func controlTool() mcp.Tool {
	return mcp.NewTool("nexus.control",
		mcp.WithDescription("Start, pause, resume, reset or tick the pipeline"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("start", "pause", "resume", "reset", "tick"),
			mcp.Description("Control action"),
		),
	)
}

func logsTool() mcp.Tool {
	return mcp.NewTool("nexus.logs",
		mcp.WithDescription("Read or filter the live log stream"),
		mcp.WithNumber("limit", mcp.Description("Newest entries to return (default 50)")),
		mcp.WithString("engine", mcp.Enum("cel", "expr", "jq"), mcp.Description("Filter engine (default expr)")),
		mcp.WithString("expression", mcp.Description("Filter expression evaluated per entry")),
	)
}

func analyzeTool() mcp.Tool {
	return mcp.NewTool("nexus.analyze",
		mcp.WithDescription("Summarize system health from a log snapshot"),
		mcp.WithString("snapshot", mcp.Description("Log snapshot text; defaults to the latest feed entries")),
		mcp.WithNumber("from_feed", mcp.Description("Feed entries to summarize when no snapshot is given (default 10)")),
		mcp.WithString("lang", mcp.Enum("en", "zh"), mcp.Description("Summary language")),
	)
}

func architectTool() mcp.Tool {
	return mcp.NewTool("nexus.architect",
		mcp.WithDescription("Design an agent configuration from a description"),
		mcp.WithString("description", mcp.Required(), mcp.Description("What the agent should do")),
		mcp.WithString("lang", mcp.Enum("en", "zh"), mcp.Description("Reply language")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("nexus.diagram",
		mcp.WithDescription("Draw the pipeline or the ontology graph"),
		mcp.WithString("target", mcp.Enum("pipeline", "ontology"), mcp.Description("Graph to draw (default pipeline)")),
		mcp.WithString("format", mcp.Enum("mermaid", "ascii", "image"), mcp.Description("Output format (default mermaid)")),
		mcp.WithString("lang", mcp.Enum("en", "zh"), mcp.Description("Label language")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("nexus.history",
		mcp.WithDescription("Query stored events, insights or agent configs"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("events", "insights", "agents"),
			mcp.Description("Record type"),
		),
		mcp.WithObject("filter", mcp.Description("Resource filter, e.g. {\"topic\":\"fsm\",\"limit\":20}")),
	)
}

func watchTool() mcp.Tool {
	return mcp.NewTool("nexus.watch",
		mcp.WithDescription("Receive live events of the given topics as notifications"),
		mcp.WithArray("topics", mcp.Description("Topics to watch: fsm, logs, insight. Empty stops watching."),
			mcp.WithStringItems()),
	)
}
