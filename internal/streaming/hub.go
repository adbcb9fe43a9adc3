package streaming

import (
	"context"
	"time"
)

// StreamEvent is a real-time event emitted by the machine, the log feed or
// the generation service.
type StreamEvent struct {
	Topic   string    `json:"topic"`
	Type    string    `json:"event_type"`
	RunID   string    `json:"run_id,omitempty"`
	NodeID  string    `json:"node_id,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// EventFilter specifies which events a subscriber wants to receive.
// Empty fields match everything.
type EventFilter struct {
	Topics     []string `json:"topics,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
	NodeID     string   `json:"node_id,omitempty"`
}

// EventHub provides pub/sub for real-time events.
// The cancel func returned by Subscribe closes the channel; cancelling the
// subscribe context has the same effect.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}

// matchFilter returns true if the event passes the filter criteria.
func matchFilter(f EventFilter, e StreamEvent) bool {
	if f.NodeID != "" && f.NodeID != e.NodeID {
		return false
	}
	if len(f.Topics) > 0 && !contains(f.Topics, e.Topic) {
		return false
	}
	if len(f.EventTypes) > 0 && !contains(f.EventTypes, e.Type) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
