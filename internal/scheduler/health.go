package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/nexus/pkg/schema"
)

// ReportFunc produces one health report.
type ReportFunc func(ctx context.Context) error

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// HealthReporter runs a ReportFunc on a cron schedule. A run that is still in
// flight when the next one is due causes that next run to be skipped.
type HealthReporter struct {
	expr   string
	run    ReportFunc
	logger *slog.Logger
	cron   *cron.Cron

	inflight atomic.Bool
	runs     atomic.Uint64
	skipped  atomic.Uint64

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHealthReporter validates expr and returns a stopped reporter.
func NewHealthReporter(expr string, run ReportFunc, logger *slog.Logger) (*HealthReporter, error) {
	if _, err := cronParser.Parse(expr); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid health report schedule %q", expr).WithCause(err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthReporter{
		expr:   expr,
		run:    run,
		logger: logger,
		cron:   cron.New(cron.WithParser(cronParser), cron.WithLocation(time.UTC)),
	}, nil
}

// Start registers the schedule and starts the cron runner.
func (h *HealthReporter) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return schema.NewError(schema.ErrCodeConflict, "health reporter already started")
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	if _, err := h.cron.AddFunc(h.expr, func() {
		if err := h.RunNow(h.ctx); err != nil && !schema.HasCode(err, schema.ErrCodeBusy) {
			h.logger.Error("health report failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		h.cancel()
		h.cancel = nil
		return fmt.Errorf("schedule health report: %w", err)
	}
	h.cron.Start()
	h.logger.Info("health reporter started", slog.String("schedule", h.expr))
	return nil
}

// RunNow executes one report immediately unless one is already running.
func (h *HealthReporter) RunNow(ctx context.Context) error {
	if !h.inflight.CompareAndSwap(false, true) {
		h.skipped.Add(1)
		return schema.NewError(schema.ErrCodeBusy, "health report already running")
	}
	defer h.inflight.Store(false)

	h.runs.Add(1)
	return h.run(ctx)
}

// Stop halts the scheduler and waits for a running report to finish.
func (h *HealthReporter) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel == nil {
		return
	}
	<-h.cron.Stop().Done()
	h.cancel()
	h.cancel = nil
	h.logger.Info("health reporter stopped")
}

// Next returns the next scheduled run after from.
func (h *HealthReporter) Next(from time.Time) time.Time {
	next, _ := CalculateNextRun(h.expr, from)
	return next
}

// Runs returns how many reports were started.
func (h *HealthReporter) Runs() uint64 { return h.runs.Load() }

// Skipped returns how many reports were skipped because one was in flight.
func (h *HealthReporter) Skipped() uint64 { return h.skipped.Load() }

// CalculateNextRun computes the next run time for a cron expression.
func CalculateNextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(from), nil
}
