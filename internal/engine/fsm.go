package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/nexus/internal/store"
	"github.com/rendis/nexus/pkg/schema"
)

// TransitionHook is called once per node whose status changed during a tick or reset.
type TransitionHook func(ctx context.Context, change Change)

// EventAppender is satisfied by the Store and EventLog; used by the Machine to emit events.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// Snapshot is a read-only copy of the machine state after a commit.
type Snapshot struct {
	RunID   string     `json:"run_id"`
	Tick    uint64     `json:"tick"`
	Cycle   uint64     `json:"cycle"`
	Policy  JoinPolicy `json:"policy"`
	Vector  Vector     `json:"vector"`
	Changes []Change   `json:"changes,omitempty"`
	At      time.Time  `json:"at"`
}

// Nodes returns the snapshot as display nodes.
func (s Snapshot) Nodes(lang schema.Lang) []Node {
	return Nodes(s.Vector, lang)
}

// MachineOptions configures a Machine.
type MachineOptions struct {
	Policy   JoinPolicy
	Appender EventAppender
	Logger   *slog.Logger
	Now      func() time.Time
}

// Machine owns the status vector and serializes every mutation.
type Machine struct {
	mu       sync.Mutex
	policy   JoinPolicy
	appender EventAppender
	logger   *slog.Logger
	now      func() time.Time
	hooks    []TransitionHook

	runID string
	vec   Vector
	tick  uint64
	cycle uint64
	last  []Change
	at    time.Time
}

// NewMachine creates a Machine holding the initial vector.
func NewMachine(opts MachineOptions) *Machine {
	if opts.Policy == "" {
		opts.Policy = JoinEager
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	m := &Machine{
		policy:   opts.Policy,
		appender: opts.Appender,
		logger:   opts.Logger,
		now:      opts.Now,
		runID:    uuid.New().String(),
		vec:      Initial(),
	}
	m.at = m.now()
	return m
}

// OnTransition registers a hook called for every node change.
func (m *Machine) OnTransition(hook TransitionHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Tick advances the vector by one step and commits it.
// The returned error only reports event emission failures; the state change
// is committed regardless.
func (m *Machine) Tick(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.vec
	next := Next(prev, m.policy)
	if prev.Status(NodeEnd) == schema.StatusExecuting && next == Initial() {
		m.cycle++
	}
	m.tick++
	snap := m.commitLocked(next)

	m.logger.DebugContext(ctx, "fsm tick",
		slog.Uint64("tick", snap.Tick),
		slog.String("vector", next.String()),
	)
	return snap, m.emitLocked(ctx, schema.EventTick, snap)
}

// Reset replaces the vector with the initial one.
func (m *Machine) Reset(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.commitLocked(Initial())
	m.logger.InfoContext(ctx, "fsm reset", slog.Uint64("tick", snap.Tick))
	return snap, m.emitLocked(ctx, schema.EventReset, snap)
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Policy returns the configured join policy.
func (m *Machine) Policy() JoinPolicy {
	return m.policy
}

func (m *Machine) commitLocked(next Vector) Snapshot {
	m.last = Diff(m.vec, next)
	m.vec = next
	m.at = m.now()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	changes := make([]Change, len(m.last))
	copy(changes, m.last)
	return Snapshot{
		RunID:   m.runID,
		Tick:    m.tick,
		Cycle:   m.cycle,
		Policy:  m.policy,
		Vector:  m.vec,
		Changes: changes,
		At:      m.at,
	}
}

// emitLocked runs hooks and appends one event per changed node plus one
// summary event. The first append error is returned; later events are still attempted.
func (m *Machine) emitLocked(ctx context.Context, eventType string, snap Snapshot) error {
	for _, c := range snap.Changes {
		for _, hook := range m.hooks {
			hook(ctx, c)
		}
	}
	if m.appender == nil {
		return nil
	}

	var firstErr error
	record := func(ev *store.Event) {
		if err := m.appender.AppendEvent(ctx, ev); err != nil && firstErr == nil {
			firstErr = schema.NewErrorf(schema.ErrCodeStore, "emit %s event: %s", ev.Type, err.Error()).
				WithNode(ev.NodeID).WithCause(err)
		}
	}

	for _, c := range snap.Changes {
		payload, _ := json.Marshal(c)
		record(&store.Event{
			RunID:     m.runID,
			Topic:     schema.TopicFSM,
			Type:      schema.EventNodeTransition,
			NodeID:    string(c.Node),
			Payload:   payload,
			Timestamp: snap.At,
		})
	}
	payload, _ := json.Marshal(map[string]any{
		"tick":   snap.Tick,
		"cycle":  snap.Cycle,
		"vector": snap.Vector.Map(),
	})
	record(&store.Event{
		RunID:     m.runID,
		Topic:     schema.TopicFSM,
		Type:      eventType,
		Payload:   payload,
		Timestamp: snap.At,
	})
	return firstErr
}
