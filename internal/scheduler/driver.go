package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/streaming"
	"github.com/rendis/nexus/pkg/schema"
)

// DefaultTickPeriod is the cadence of the FSM driver.
const DefaultTickPeriod = 1500 * time.Millisecond

// EventPublisher is the subset of streaming.EventHub the driver needs.
type EventPublisher interface {
	Publish(ctx context.Context, event streaming.StreamEvent) error
}

// DriverDeps holds the collaborators of a Driver.
type DriverDeps struct {
	Machine *engine.Machine
	Hub     EventPublisher
	Logger  *slog.Logger
	Period  time.Duration
	// OnTick observes every committed tick. Optional.
	OnTick func(engine.Snapshot)
}

// Driver advances a Machine on a fixed cadence and publishes every commit.
type Driver struct {
	machine *engine.Machine
	hub     EventPublisher
	logger  *slog.Logger
	loop    *Loop
	onTick  func(engine.Snapshot)

	// tickMu orders commits with their notifications across loop and manual ticks.
	tickMu sync.Mutex

	stateMu sync.Mutex
	stopped bool
}

// NewDriver creates a stopped Driver.
func NewDriver(deps DriverDeps) *Driver {
	if deps.Period <= 0 {
		deps.Period = DefaultTickPeriod
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	d := &Driver{
		machine: deps.Machine,
		hub:     deps.Hub,
		logger:  deps.Logger,
		onTick:  deps.OnTick,
	}
	d.loop = NewLoop("fsm", deps.Period, func(ctx context.Context) {
		if _, err := d.Tick(ctx); err != nil {
			d.logger.Warn("fsm tick", slog.String("error", err.Error()))
		}
	}, deps.Logger)
	return d
}

// Start begins ticking. Starting a running driver is a conflict.
func (d *Driver) Start(ctx context.Context) error {
	d.stateMu.Lock()
	stopped := d.stopped
	d.stateMu.Unlock()
	if stopped {
		return schema.NewError(schema.ErrCodeInvalidState, "driver stopped")
	}
	if err := d.loop.Start(ctx); err != nil {
		return err
	}
	d.logger.Info("fsm driver started",
		slog.Duration("period", d.loop.Period()),
		slog.String("policy", string(d.machine.Policy())),
	)
	return nil
}

// Pause suspends ticking. No tick fires after Pause returns.
// Pausing a paused or stopped driver is a no-op.
func (d *Driver) Pause(ctx context.Context) {
	if !d.loop.Running() {
		return
	}
	d.loop.Stop()
	snap := d.machine.Snapshot()
	d.publish(ctx, streaming.StreamEvent{
		Topic:   schema.TopicFSM,
		Type:    schema.EventPaused,
		RunID:   snap.RunID,
		Payload: snap,
	})
	d.logger.Info("fsm driver paused", slog.Uint64("tick", snap.Tick))
}

// Resume continues ticking from the current vector.
func (d *Driver) Resume(ctx context.Context) error {
	if d.loop.Running() {
		return nil
	}
	if err := d.Start(ctx); err != nil {
		return err
	}
	snap := d.machine.Snapshot()
	d.publish(ctx, streaming.StreamEvent{
		Topic:   schema.TopicFSM,
		Type:    schema.EventResumed,
		RunID:   snap.RunID,
		Payload: snap,
	})
	return nil
}

// Tick advances the machine once and publishes the result.
// Safe to call while the loop is running; ticks are serialized.
func (d *Driver) Tick(ctx context.Context) (engine.Snapshot, error) {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	snap, err := d.machine.Tick(ctx)
	if d.onTick != nil {
		d.onTick(snap)
	}
	d.publishSnapshot(ctx, schema.EventTick, snap)
	return snap, err
}

// Reset restores the initial vector. A running driver keeps ticking.
func (d *Driver) Reset(ctx context.Context) (engine.Snapshot, error) {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	snap, err := d.machine.Reset(ctx)
	d.publishSnapshot(ctx, schema.EventReset, snap)
	return snap, err
}

// Stop halts the driver permanently.
func (d *Driver) Stop() {
	d.stateMu.Lock()
	d.stopped = true
	d.stateMu.Unlock()
	d.loop.Stop()
	d.logger.Info("fsm driver stopped")
}

// Running reports whether the driver is ticking.
func (d *Driver) Running() bool {
	return d.loop.Running()
}

// Snapshot returns the current machine state.
func (d *Driver) Snapshot() engine.Snapshot {
	return d.machine.Snapshot()
}

// Period returns the tick cadence.
func (d *Driver) Period() time.Duration {
	return d.loop.Period()
}

func (d *Driver) publishSnapshot(ctx context.Context, eventType string, snap engine.Snapshot) {
	for _, c := range snap.Changes {
		d.publish(ctx, streaming.StreamEvent{
			Topic:   schema.TopicFSM,
			Type:    schema.EventNodeTransition,
			RunID:   snap.RunID,
			NodeID:  string(c.Node),
			Payload: c,
			At:      snap.At,
		})
	}
	d.publish(ctx, streaming.StreamEvent{
		Topic:   schema.TopicFSM,
		Type:    eventType,
		RunID:   snap.RunID,
		Payload: snap,
		At:      snap.At,
	})
}

func (d *Driver) publish(ctx context.Context, ev streaming.StreamEvent) {
	if d.hub == nil {
		return
	}
	if err := d.hub.Publish(ctx, ev); err != nil {
		d.logger.Debug("publish fsm event", slog.String("type", ev.Type), slog.String("error", err.Error()))
	}
}
