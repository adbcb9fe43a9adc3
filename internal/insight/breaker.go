package insight

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rendis/nexus/pkg/schema"
)

// BreakerState is the state of one call kind's circuit.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker. Zero fields take the defaults.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int
	// Cooldown is how long an open circuit rejects calls before one probe is let through.
	Cooldown time.Duration
	Now      func() time.Time
}

const (
	defaultBreakerThreshold = 3
	defaultBreakerCooldown  = time.Minute
)

// Call kinds tracked separately by the Breaker.
const (
	kindSummary   = "summary"
	kindArchitect = "architect"
)

type circuit struct {
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// Breaker wraps a Generator and stops calling the provider after repeated
// failures. Rejected calls fail with ErrCodeGeneration without a network
// round trip, so the Service falls back exactly as for a provider error.
type Breaker struct {
	inner Generator
	cfg   BreakerConfig

	mu       sync.Mutex
	circuits map[string]*circuit
}

// NewBreaker wraps g.
func NewBreaker(g Generator, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultBreakerThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultBreakerCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{inner: g, cfg: cfg, circuits: make(map[string]*circuit)}
}

func (b *Breaker) Name() string { return b.inner.Name() }

func (b *Breaker) Summarize(ctx context.Context, logs string, lang schema.Lang) (string, error) {
	if err := b.allow(kindSummary); err != nil {
		return "", err
	}
	text, err := b.inner.Summarize(ctx, logs, lang)
	b.record(kindSummary, err)
	return text, err
}

func (b *Breaker) GenerateAgentConfig(ctx context.Context, description string, lang schema.Lang) (*schema.AgentConfig, error) {
	if err := b.allow(kindArchitect); err != nil {
		return nil, err
	}
	cfg, err := b.inner.GenerateAgentConfig(ctx, description, lang)
	b.record(kindArchitect, err)
	return cfg, err
}

// State reports the circuit state for a call kind ("summary" or "architect").
func (b *Breaker) State(kind string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.circuit(kind)
	if c.state == BreakerOpen && b.cfg.Now().Sub(c.openedAt) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return c.state
}

func (b *Breaker) allow(kind string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.circuit(kind)

	switch c.state {
	case BreakerOpen:
		remaining := b.cfg.Cooldown - b.cfg.Now().Sub(c.openedAt)
		if remaining > 0 {
			return schema.NewErrorf(schema.ErrCodeGeneration,
				"%s provider disabled after %d consecutive failures", kind, c.failures).
				WithDetails(map[string]any{
					"circuit":            c.state.String(),
					"cooldown_remaining": remaining.Round(time.Second).String(),
				})
		}
		c.state = BreakerHalfOpen
		c.probing = true
		return nil
	case BreakerHalfOpen:
		if c.probing {
			return schema.NewErrorf(schema.ErrCodeGeneration, "%s provider probe already in flight", kind).
				WithDetails(map[string]any{"circuit": c.state.String()})
		}
		c.probing = true
	}
	return nil
}

func (b *Breaker) record(kind string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.circuit(kind)
	c.probing = false

	if errors.Is(err, context.Canceled) {
		return
	}
	if err == nil {
		c.state = BreakerClosed
		c.failures = 0
		return
	}
	c.failures++
	if c.state == BreakerHalfOpen || c.failures >= b.cfg.Threshold {
		c.state = BreakerOpen
		c.openedAt = b.cfg.Now()
	}
}

func (b *Breaker) circuit(kind string) *circuit {
	c, ok := b.circuits[kind]
	if !ok {
		c = &circuit{}
		b.circuits[kind] = c
	}
	return c
}
