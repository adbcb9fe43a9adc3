package schema

// Event type constants for the event log and the live stream.
const (
	EventTick           = "tick"
	EventNodeTransition = "node_transition"
	EventReset          = "reset"
	EventPaused         = "paused"
	EventResumed        = "resumed"

	EventLogEntry = "log_entry"

	EventInsightGenerated   = "insight_generated"
	EventAgentConfigCreated = "agent_config_created"
	EventHealthReport       = "health_report"
)

// Stream topics. Every published event belongs to exactly one topic.
const (
	TopicFSM     = "fsm"
	TopicLogs    = "logs"
	TopicInsight = "insight"
)

// Status is the lifecycle state of a pipeline node.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusThinking  Status = "THINKING"
	StatusExecuting Status = "EXECUTING"
	StatusWaiting   Status = "WAITING"
	StatusError     Status = "ERROR"
	StatusCompleted Status = "COMPLETED"
)

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusThinking, StatusExecuting, StatusWaiting, StatusError, StatusCompleted:
		return true
	}
	return false
}

// NodeType classifies a pipeline node.
type NodeType string

const (
	NodeTypeStart    NodeType = "start"
	NodeTypePlanner  NodeType = "planner"
	NodeTypeExecutor NodeType = "executor"
	NodeTypeReviewer NodeType = "reviewer"
	NodeTypeEnd      NodeType = "end"
)

// LogLevel is the severity of a simulated log record.
type LogLevel string

const (
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
	LevelDebug LogLevel = "DEBUG"
)
