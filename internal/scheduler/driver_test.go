package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/streaming"
	"github.com/rendis/nexus/pkg/schema"
)

// mockPublisher records published events.
type mockPublisher struct {
	mu     sync.Mutex
	events []streaming.StreamEvent
}

func (m *mockPublisher) Publish(_ context.Context, ev streaming.StreamEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

func newTestDriver(period time.Duration, policy engine.JoinPolicy) (*Driver, *mockPublisher) {
	pub := &mockPublisher{}
	d := NewDriver(DriverDeps{
		Machine: engine.NewMachine(engine.MachineOptions{Policy: policy, Logger: testLogger()}),
		Hub:     pub,
		Logger:  testLogger(),
		Period:  period,
	})
	return d, pub
}

func TestDriver_DefaultPeriod(t *testing.T) {
	d, _ := newTestDriver(0, engine.JoinEager)
	assert.Equal(t, 1500*time.Millisecond, d.Period())
	assert.False(t, d.Running())
}

func TestDriver_TicksWhileRunning(t *testing.T) {
	d, _ := newTestDriver(5*time.Millisecond, engine.JoinEager)
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	assert.Eventually(t, func() bool { return d.Snapshot().Tick >= 4 }, time.Second, time.Millisecond)
	d.Stop()

	snap := d.Snapshot()
	assert.NoError(t, engine.Validate(snap.Vector))
}

func TestDriver_PauseFreezesVector(t *testing.T) {
	d, pub := newTestDriver(5*time.Millisecond, engine.JoinEager)
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	assert.Eventually(t, func() bool { return d.Snapshot().Tick >= 2 }, time.Second, time.Millisecond)

	d.Pause(ctx)
	frozen := d.Snapshot()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen.Tick, d.Snapshot().Tick)
	assert.Equal(t, frozen.Vector, d.Snapshot().Vector)
	assert.False(t, d.Running())
	assert.Contains(t, pub.types(), schema.EventPaused)

	// Pause on a paused driver is a no-op.
	d.Pause(ctx)

	require.NoError(t, d.Resume(ctx))
	assert.Eventually(t, func() bool { return d.Snapshot().Tick > frozen.Tick }, time.Second, time.Millisecond)
	assert.Contains(t, pub.types(), schema.EventResumed)
	d.Stop()
}

func TestDriver_ManualTickFollowsEngine(t *testing.T) {
	d, pub := newTestDriver(time.Hour, engine.JoinEager)
	ctx := context.Background()

	snap, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.Next(engine.Initial(), engine.JoinEager), snap.Vector)

	// 3 transitions + 1 tick summary
	assert.Equal(t, []string{
		schema.EventNodeTransition, schema.EventNodeTransition, schema.EventNodeTransition, schema.EventTick,
	}, pub.types())
}

func TestDriver_ResetKeepsRunning(t *testing.T) {
	d, pub := newTestDriver(5*time.Millisecond, engine.JoinBarrier)
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	defer d.Stop()
	assert.Eventually(t, func() bool { return d.Snapshot().Tick >= 2 }, time.Second, time.Millisecond)

	_, err := d.Reset(ctx)
	require.NoError(t, err)
	assert.True(t, d.Running())
	assert.Contains(t, pub.types(), schema.EventReset)
}

func TestDriver_ResetWhilePaused(t *testing.T) {
	d, _ := newTestDriver(time.Hour, engine.JoinEager)
	ctx := context.Background()

	_, _ = d.Tick(ctx)
	_, _ = d.Tick(ctx)
	snap, err := d.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.Initial(), snap.Vector)
	assert.False(t, d.Running())
}

func TestDriver_StopIsFinal(t *testing.T) {
	d, _ := newTestDriver(time.Hour, engine.JoinEager)
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	d.Stop()
	assert.False(t, d.Running())

	err := d.Start(ctx)
	assert.True(t, schema.HasCode(err, schema.ErrCodeInvalidState))
	err = d.Resume(ctx)
	assert.True(t, schema.HasCode(err, schema.ErrCodeInvalidState))

	// Pause on a stopped driver is a no-op.
	d.Pause(ctx)
}

func TestDriver_ConcurrentManualTicks(t *testing.T) {
	d, pub := newTestDriver(2*time.Millisecond, engine.JoinEager)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Tick(ctx)
		}()
	}
	wg.Wait()
	d.Stop()

	// Every tick summary is preceded by its own transitions only.
	types := pub.types()
	require.NotEmpty(t, types)
	assert.Equal(t, schema.EventTick, types[len(types)-1])
}

func TestDriver_WithMemoryHub(t *testing.T) {
	hub := streaming.NewMemoryHub()
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{Topics: []string{schema.TopicFSM}, EventTypes: []string{schema.EventTick}})
	require.NoError(t, err)
	defer cancel()

	d := NewDriver(DriverDeps{
		Machine: engine.NewMachine(engine.MachineOptions{}),
		Hub:     hub,
		Logger:  testLogger(),
		Period:  time.Hour,
	})
	_, err = d.Tick(ctx)
	require.NoError(t, err)

	select {
	case ev := <-ch:
		snap, ok := ev.Payload.(engine.Snapshot)
		require.True(t, ok)
		assert.Equal(t, uint64(1), snap.Tick)
	case <-time.After(time.Second):
		t.Fatal("no tick event")
	}
}
