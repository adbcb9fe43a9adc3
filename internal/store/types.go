package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/nexus/pkg/schema"
)

// Event is an immutable entry in the event log.
// Sequence is monotonic per run.
type Event struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Topic     string          `json:"topic"`
	Type      string          `json:"event_type"`
	NodeID    string          `json:"node_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// EventFilter narrows ListEvents results. Zero values are ignored.
type EventFilter struct {
	RunID   string
	Topic   string
	Type    string
	NodeID  string
	Since   *time.Time
	AfterID int64
	Limit   int
}

// InsightFilter narrows ListInsights results.
type InsightFilter struct {
	Lang  schema.Lang
	Since *time.Time
	Limit int
}

// AgentConfigFilter narrows ListAgentConfigs results.
type AgentConfigFilter struct {
	Name  string
	Mock  *bool
	Limit int
}
