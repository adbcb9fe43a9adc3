package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nexus/internal/streaming"
	"github.com/rendis/nexus/pkg/schema"
)

type sent struct {
	session string
	params  map[string]any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	errs map[string]error
}

func (f *fakeSender) SendNotificationToSpecificClient(sessionID, method string, params map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[sessionID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{session: sessionID, params: params})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestHubNotifier_ForwardToWatchers(t *testing.T) {
	sessions := NewSessionRegistry()
	sessions.Watch("a", []string{schema.TopicFSM})
	sessions.Watch("b", []string{schema.TopicLogs})
	sender := &fakeSender{}
	n := NewHubNotifier(sender, sessions, slog.New(slog.DiscardHandler))

	n.Forward(streaming.StreamEvent{Topic: schema.TopicFSM, Type: schema.EventTick})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "a", sender.sent[0].session)
	assert.Equal(t, "nexus.fsm", sender.sent[0].params["logger"])
}

func TestHubNotifier_DropsExpiredSessions(t *testing.T) {
	sessions := NewSessionRegistry()
	sessions.Watch("gone", []string{schema.TopicFSM})
	sessions.Watch("flaky", []string{schema.TopicFSM})
	sender := &fakeSender{errs: map[string]error{
		"gone":  server.ErrSessionNotFound,
		"flaky": errors.New("channel full"),
	}}
	n := NewHubNotifier(sender, sessions, slog.New(slog.DiscardHandler))

	n.Forward(streaming.StreamEvent{Topic: schema.TopicFSM})

	_, ok := sessions.Topics("gone")
	assert.False(t, ok)
	_, ok = sessions.Topics("flaky")
	assert.True(t, ok)
}

func TestHubNotifier_StartStop(t *testing.T) {
	hub := streaming.NewMemoryHub()
	sessions := NewSessionRegistry()
	sessions.Watch("a", []string{schema.TopicInsight})
	sender := &fakeSender{}
	n := NewHubNotifier(sender, sessions, nil)

	require.NoError(t, n.Start(context.Background(), hub))
	require.NoError(t, hub.Publish(context.Background(), streaming.StreamEvent{Topic: schema.TopicInsight, Type: schema.EventHealthReport}))

	assert.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)

	n.Stop()
	n.Stop()
	assert.Equal(t, 0, hub.Subscribers())
}
