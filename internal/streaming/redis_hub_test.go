package streaming

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisHub(t *testing.T) *RedisHub {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	hub := NewRedisHubFromClient(client, WithChannelPrefix("test:"))
	t.Cleanup(func() { _ = hub.Close() })
	return hub
}

func TestRedisHub_PublishSubscribe(t *testing.T) {
	hub := newTestRedisHub(t)
	ctx := context.Background()
	require.NoError(t, hub.Ping(ctx))

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{Topics: []string{"fsm"}})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{
		Topic:   "fsm",
		Type:    "node_transition",
		NodeID:  "aggregator",
		Payload: map[string]string{"to": "EXECUTING"},
	}))

	got := recv(t, ch)
	assert.Equal(t, "fsm", got.Topic)
	assert.Equal(t, "aggregator", got.NodeID)
	raw, ok := got.Payload.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"to":"EXECUTING"}`, string(raw))
}

func TestRedisHub_TopicIsolation(t *testing.T) {
	hub := newTestRedisHub(t)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{Topics: []string{"logs"}})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{Topic: "fsm", Type: "tick"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{Topic: "logs", Type: "log_entry"}))

	got := recv(t, ch)
	assert.Equal(t, "logs", got.Topic)
}

func TestRedisHub_PatternSubscribeWithTypeFilter(t *testing.T) {
	hub := newTestRedisHub(t)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{EventTypes: []string{"insight_generated"}})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{Topic: "fsm", Type: "tick"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{Topic: "insight", Type: "insight_generated"}))

	got := recv(t, ch)
	assert.Equal(t, "insight_generated", got.Type)
}

func TestRedisHub_CancelClosesChannel(t *testing.T) {
	hub := newTestRedisHub(t)

	ch, cancel, err := hub.Subscribe(context.Background(), EventFilter{Topics: []string{"fsm"}})
	require.NoError(t, err)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestRedisHub_PublishRequiresTopic(t *testing.T) {
	hub := newTestRedisHub(t)
	assert.Error(t, hub.Publish(context.Background(), StreamEvent{Type: "tick"}))
}

func TestNewRedisHub_BadURL(t *testing.T) {
	_, err := NewRedisHub("://nope")
	assert.Error(t, err)
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent(`{"topic":"logs","event_type":"log_entry","payload":{"id":"x1"}}`)
	require.NoError(t, err)
	assert.Equal(t, "logs", ev.Topic)
	assert.JSONEq(t, `{"id":"x1"}`, string(ev.Payload.(json.RawMessage)))

	_, err = decodeEvent("not json")
	assert.Error(t, err)
}
