package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/nexus/internal/scheduler"
	"github.com/rendis/nexus/internal/store"
	"github.com/rendis/nexus/internal/streaming"
	"github.com/rendis/nexus/pkg/schema"
)

const (
	// DefaultCapacity is the number of entries the feed keeps.
	DefaultCapacity = 50
	// DefaultPeriod is the emission cadence.
	DefaultPeriod = 800 * time.Millisecond
)

// EventAppender persists emitted entries. Optional.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// Deps holds the collaborators of a Feed.
type Deps struct {
	Generator *Generator
	Hub       scheduler.EventPublisher
	Appender  EventAppender
	Logger    *slog.Logger
	Period    time.Duration
	Capacity  int
	// OnEntry observes every emitted entry. Optional.
	OnEntry func(schema.LogEntry)
}

// Feed keeps the newest log entries and emits a new one every period.
type Feed struct {
	mu    sync.Mutex
	gen   *Generator
	ring  *Ring[schema.LogEntry]
	total uint64

	hub      scheduler.EventPublisher
	appender EventAppender
	logger   *slog.Logger
	onEntry  func(schema.LogEntry)
	loop     *scheduler.Loop
	runID    string
}

// New creates a stopped Feed.
func New(deps Deps) *Feed {
	if deps.Generator == nil {
		deps.Generator = NewGenerator(0, nil)
	}
	if deps.Capacity <= 0 {
		deps.Capacity = DefaultCapacity
	}
	if deps.Period <= 0 {
		deps.Period = DefaultPeriod
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	f := &Feed{
		gen:      deps.Generator,
		ring:     NewRing[schema.LogEntry](deps.Capacity),
		hub:      deps.Hub,
		appender: deps.Appender,
		logger:   deps.Logger,
		onEntry:  deps.OnEntry,
		runID:    uuid.New().String(),
	}
	f.loop = scheduler.NewLoop("feed", deps.Period, func(ctx context.Context) { f.Emit(ctx) }, deps.Logger)
	return f
}

// Start begins periodic emission.
func (f *Feed) Start(ctx context.Context) error { return f.loop.Start(ctx) }

// Stop halts emission; no entry is emitted after Stop returns.
func (f *Feed) Stop() { f.loop.Stop() }

// Running reports whether the feed is emitting.
func (f *Feed) Running() bool { return f.loop.Running() }

// Emit generates one entry, stores it in the ring and publishes it.
func (f *Feed) Emit(ctx context.Context) schema.LogEntry {
	f.mu.Lock()
	entry := f.gen.Next()
	f.ring.Push(entry)
	f.total++
	f.mu.Unlock()

	if f.onEntry != nil {
		f.onEntry(entry)
	}
	if f.hub != nil {
		if err := f.hub.Publish(ctx, streaming.StreamEvent{
			Topic:   schema.TopicLogs,
			Type:    schema.EventLogEntry,
			RunID:   f.runID,
			Payload: entry,
			At:      entry.Timestamp,
		}); err != nil {
			f.logger.Debug("publish log entry", slog.String("error", err.Error()))
		}
	}
	if f.appender != nil {
		payload, _ := json.Marshal(entry)
		if err := f.appender.AppendEvent(ctx, &store.Event{
			RunID:     f.runID,
			Topic:     schema.TopicLogs,
			Type:      schema.EventLogEntry,
			Payload:   payload,
			Timestamp: entry.Timestamp,
		}); err != nil {
			f.logger.Warn("persist log entry", slog.String("id", entry.ID), slog.String("error", err.Error()))
		}
	}
	return entry
}

// Entries returns the buffered entries, oldest first.
func (f *Feed) Entries() []schema.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ring.Items()
}

// Latest returns up to n newest entries, oldest first.
func (f *Feed) Latest(n int) []schema.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ring.Last(n)
}

// Stats reports the buffer occupancy and the number of entries ever emitted.
func (f *Feed) Stats() (size, capacity int, total uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ring.Len(), f.ring.Cap(), f.total
}

// Clear empties the buffer.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ring.Clear()
}

// Format renders entries as plain log lines, one per entry.
func Format(entries []schema.LogEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %-5s %s: %s", e.Timestamp.UTC().Format("15:04:05"), e.Level, e.Source, e.Message)
	}
	return b.String()
}
