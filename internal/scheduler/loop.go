package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/nexus/pkg/schema"
)

// TickFunc is the body of one loop iteration.
type TickFunc func(ctx context.Context)

// Loop runs a TickFunc on a fixed period from a single goroutine.
// Iterations never overlap. The first iteration fires one period after Start.
type Loop struct {
	name   string
	period time.Duration
	fn     TickFunc
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates a stopped Loop.
func NewLoop(name string, period time.Duration, fn TickFunc, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{name: name, period: period, fn: fn, logger: logger}
}

// Start launches the loop goroutine. Starting a running loop is a conflict.
func (l *Loop) Start(ctx context.Context) error {
	if l.period <= 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s loop: period must be positive, got %s", l.name, l.period)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return schema.NewErrorf(schema.ErrCodeConflict, "%s loop already running", l.name)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(loopCtx, l.done)

	l.logger.Debug("loop started", slog.String("loop", l.name), slog.Duration("period", l.period))
	return nil
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A stop racing with the ticker must win.
			if ctx.Err() != nil {
				return
			}
			l.fn(ctx)
		}
	}
}

// Stop cancels the loop and waits for the goroutine to exit, so no iteration
// runs after Stop returns. Stopping a stopped loop is a no-op.
// Must not be called from inside the TickFunc.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
	l.done = nil

	l.logger.Debug("loop stopped", slog.String("loop", l.name))
}

// Running reports whether the loop goroutine is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done != nil
}

// Period returns the configured period.
func (l *Loop) Period() time.Duration { return l.period }
