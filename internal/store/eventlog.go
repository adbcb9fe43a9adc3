package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/nexus/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide event-sourcing operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-run sequence.
// The write lock is taken before the sequence is read so concurrent writers
// cannot interleave.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	if event.RunID == "" || event.Topic == "" || event.Type == "" {
		return schema.NewError(schema.ErrCodeValidation, "event requires run_id, topic and type")
	}
	tx, err := el.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx starts a deferred transaction; a write forces the lock.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a run with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, runID, since)
}

// ListEvents returns events matching the filter, newest first.
func (el *EventLog) ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	return el.store.ListEvents(ctx, filter)
}

// TransitionPayload is the payload of a node_transition event.
type TransitionPayload struct {
	Node string        `json:"node"`
	From schema.Status `json:"from"`
	To   schema.Status `json:"to"`
}

// Replay folds the node_transition events of a run into the last known status
// per node. Returns an error if sequence gaps are detected.
func (el *EventLog) Replay(ctx context.Context, runID string) (map[string]schema.Status, error) {
	events, err := el.store.GetEvents(ctx, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in run %s: expected %d, got %d", runID, expected, e.Sequence)
		}
	}

	states := make(map[string]schema.Status)
	for _, e := range events {
		if e.Type != schema.EventNodeTransition {
			continue
		}
		var p TransitionPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"decode transition %d of run %s", e.Sequence, runID).WithCause(err)
		}
		node := p.Node
		if node == "" {
			node = e.NodeID
		}
		states[node] = p.To
	}
	return states, nil
}

// NodeHistory returns the transitions of one node in a run, oldest first.
func (el *EventLog) NodeHistory(ctx context.Context, runID, nodeID string) ([]TransitionPayload, error) {
	events, err := el.store.GetEvents(ctx, runID, 0)
	if err != nil {
		return nil, err
	}
	var out []TransitionPayload
	for _, e := range events {
		if e.Type != schema.EventNodeTransition || e.NodeID != nodeID {
			continue
		}
		var p TransitionPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode transition %d: %w", e.Sequence, err)
		}
		out = append(out, p)
	}
	return out, nil
}
