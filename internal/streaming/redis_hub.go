package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisHub fans events out through Redis pub/sub so several nexus processes
// can share one live stream. Each topic maps to one channel.
type RedisHub struct {
	client *backend.Client
	prefix string
	logger *slog.Logger
}

type RedisOption func(*RedisHub)

// WithChannelPrefix sets the channel prefix (default "nexus:events:").
func WithChannelPrefix(prefix string) RedisOption {
	return func(h *RedisHub) {
		h.prefix = prefix
	}
}

// WithRedisLogger sets the logger used for decode failures.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(h *RedisHub) {
		h.logger = logger
	}
}

// NewRedisHub connects to the Redis server at url (redis://host:port/db).
func NewRedisHub(url string, opts ...RedisOption) (*RedisHub, error) {
	o, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisHubFromClient(backend.NewClient(o), opts...), nil
}

// NewRedisHubFromClient wraps an existing client.
func NewRedisHubFromClient(client *backend.Client, opts ...RedisOption) *RedisHub {
	h := &RedisHub{
		client: client,
		prefix: "nexus:events:",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Ping checks connectivity.
func (h *RedisHub) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (h *RedisHub) Close() error {
	return h.client.Close()
}

// Publish encodes the event as JSON and publishes it on the topic channel.
func (h *RedisHub) Publish(ctx context.Context, event StreamEvent) error {
	if event.Topic == "" {
		return fmt.Errorf("publish: event topic is required")
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return h.client.Publish(ctx, h.prefix+event.Topic, data).Err()
}

// Subscribe listens on the filter topics, or on every topic when none is given.
// Decoded payloads arrive as json.RawMessage.
func (h *RedisHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var ps *backend.PubSub
	if len(filter.Topics) == 0 {
		ps = h.client.PSubscribe(ctx, h.prefix+"*")
	} else {
		channels := make([]string, len(filter.Topics))
		for i, t := range filter.Topics {
			channels[i] = h.prefix + t
		}
		ps = h.client.Subscribe(ctx, channels...)
	}
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan StreamEvent, defaultChannelBuffer)
	msgs := ps.Channel()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decodeEvent(msg.Payload)
				if err != nil {
					h.logger.Warn("redis hub: drop undecodable event",
						slog.String("channel", msg.Channel), slog.String("error", err.Error()))
					continue
				}
				if !matchFilter(filter, ev) {
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
			wg.Wait()
		})
	}
	return out, cancel, nil
}

// wireEvent mirrors StreamEvent with a raw payload for decoding.
type wireEvent struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"event_type"`
	RunID   string          `json:"run_id,omitempty"`
	NodeID  string          `json:"node_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

func decodeEvent(data string) (StreamEvent, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return StreamEvent{}, err
	}
	ev := StreamEvent{Topic: w.Topic, Type: w.Type, RunID: w.RunID, NodeID: w.NodeID, At: w.At}
	if len(w.Payload) > 0 {
		ev.Payload = w.Payload
	}
	return ev, nil
}
