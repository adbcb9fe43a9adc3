package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nexus/internal/streaming"
)

const notificationMethod = "notifications/message"

// notificationSender is the part of server.MCPServer the notifier uses.
type notificationSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// HubNotifier forwards hub events to the sessions watching their topic.
type HubNotifier struct {
	sender   notificationSender
	sessions *SessionRegistry
	logger   *slog.Logger

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
}

// NewHubNotifier creates a stopped notifier.
func NewHubNotifier(sender notificationSender, sessions *SessionRegistry, logger *slog.Logger) *HubNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &HubNotifier{sender: sender, sessions: sessions, logger: logger}
}

// Start subscribes to every hub event and forwards until ctx ends or Stop is called.
func (n *HubNotifier) Start(ctx context.Context, hub streaming.EventHub) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	done := make(chan struct{})

	n.mu.Lock()
	n.cancel = cancel
	n.done = done
	n.mu.Unlock()

	go func() {
		defer close(done)
		for event := range ch {
			n.Forward(event)
		}
	}()
	return nil
}

// Stop unsubscribes and waits for the forwarding goroutine to exit.
func (n *HubNotifier) Stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Forward delivers one event. Best-effort: expired sessions are dropped.
func (n *HubNotifier) Forward(event streaming.StreamEvent) {
	for _, sid := range n.sessions.Watchers(event.Topic) {
		err := n.sender.SendNotificationToSpecificClient(sid, notificationMethod, map[string]any{
			"level":  "info",
			"logger": "nexus." + event.Topic,
			"data":   event,
		})
		switch {
		case err == nil:
		case errors.Is(err, server.ErrSessionNotFound):
			n.sessions.Remove(sid)
		default:
			n.logger.Debug("notify session", "session_id", sid, "event_type", event.Type, "error", err)
		}
	}
}
