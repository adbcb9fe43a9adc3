package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case got, ok := <-ch:
		require.True(t, ok, "channel closed")
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return StreamEvent{}
}

func assertNoEvent(t *testing.T, ch <-chan StreamEvent) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected event: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := StreamEvent{
		Topic:   "fsm",
		Type:    "node_transition",
		NodeID:  "planner",
		Payload: map[string]any{"to": "COMPLETED"},
	}
	require.NoError(t, hub.Publish(ctx, event))

	got := recv(t, ch)
	assert.Equal(t, "fsm", got.Topic)
	assert.Equal(t, "planner", got.NodeID)
	assert.Equal(t, "node_transition", got.Type)
	assert.False(t, got.At.IsZero())
}

func TestFilterByTopic(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{Topics: []string{"logs"}})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{Topic: "fsm", Type: "tick"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{Topic: "logs", Type: "log_entry"}))

	got := recv(t, ch)
	assert.Equal(t, "logs", got.Topic)
	assertNoEvent(t, ch)
}

func TestFilterByEventTypeAndNode(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{EventTypes: []string{"node_transition"}, NodeID: "end"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{Topic: "fsm", Type: "tick"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{Topic: "fsm", Type: "node_transition", NodeID: "planner"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{Topic: "fsm", Type: "node_transition", NodeID: "end"}))

	got := recv(t, ch)
	assert.Equal(t, "end", got.NodeID)
	assertNoEvent(t, ch)
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())
	require.NoError(t, hub.Publish(ctx, StreamEvent{Topic: "fsm"}))
}

func TestContextCancelUnsubscribes(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancelCtx := context.WithCancel(context.Background())

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	cancelCtx()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	_, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < defaultChannelBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, StreamEvent{Topic: "logs", Type: "log_entry"}))
	}
	assert.Equal(t, uint64(10), hub.Dropped())
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, hub.Publish(ctx, StreamEvent{Topic: "fsm"}))
	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.Error(t, err)
}

func TestConcurrentPublish(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				_ = hub.Publish(ctx, StreamEvent{Topic: "fsm", Type: "tick"})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ch, 32)
}
