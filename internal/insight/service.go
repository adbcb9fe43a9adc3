package insight

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/nexus/internal/streaming"
	"github.com/rendis/nexus/pkg/schema"
)

// Store persists generation results. Satisfied by store.Store.
type Store interface {
	SaveInsight(ctx context.Context, insight *schema.Insight) error
	SaveAgentConfig(ctx context.Context, cfg *schema.StoredAgentConfig) error
}

// Publisher fans results out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, event streaming.StreamEvent) error
}

// Deps holds the collaborators of a Service. A nil Generator means no
// credentials: every call is answered with canned content.
type Deps struct {
	Generator Generator
	Store     Store
	Hub       Publisher
	Logger    *slog.Logger
	Now       func() time.Time
	Timeout   time.Duration
}

// Service applies the call policy around a Generator: canned content without
// credentials, a fallback summary on failure, errors returned for config
// generation, and a single in-flight request per kind.
type Service struct {
	gen     Generator
	store   Store
	hub     Publisher
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration

	summarizing  atomic.Bool
	architecting atomic.Bool
}

// ArchitectResult is a generated config together with the assistant reply.
type ArchitectResult struct {
	Config *schema.StoredAgentConfig `json:"config"`
	Reply  string                    `json:"reply"`
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	s := &Service{
		gen:     deps.Generator,
		store:   deps.Store,
		hub:     deps.Hub,
		logger:  deps.Logger,
		now:     deps.Now,
		timeout: deps.Timeout,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Configured reports whether a real provider is wired.
func (s *Service) Configured() bool { return s.gen != nil }

// Provider names the generator in use.
func (s *Service) Provider() string {
	if s.gen == nil {
		return MockGenerator{}.Name()
	}
	return s.gen.Name()
}

// Analyze summarizes a log snapshot. Generation failures never surface: the
// summary is replaced by a fallback message and Insight.Fallback is set.
// The only errors are an empty snapshot and ErrCodeBusy.
func (s *Service) Analyze(ctx context.Context, snapshot string, lang schema.Lang) (*schema.Insight, error) {
	return s.summarize(ctx, snapshot, lang, schema.EventInsightGenerated)
}

// Report is Analyze for scheduled health reports; results are published
// as health_report events.
func (s *Service) Report(ctx context.Context, snapshot string) (*schema.Insight, error) {
	return s.summarize(ctx, snapshot, schema.LangEN, schema.EventHealthReport)
}

func (s *Service) summarize(ctx context.Context, snapshot string, lang schema.Lang, eventType string) (*schema.Insight, error) {
	if strings.TrimSpace(snapshot) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "log snapshot is empty")
	}
	if !s.summarizing.CompareAndSwap(false, true) {
		return nil, schema.NewError(schema.ErrCodeBusy, "an analysis is already in progress")
	}
	defer s.summarizing.Store(false)

	ins := &schema.Insight{
		ID:       uuid.NewString(),
		Snapshot: snapshot,
		Lang:     lang,
		Source:   s.Provider(),
	}

	if s.gen == nil {
		ins.Summary = NoKeySummary
	} else {
		callCtx, cancel := s.withTimeout(ctx)
		text, err := s.gen.Summarize(callCtx, snapshot, lang)
		cancel()
		switch {
		case err != nil:
			s.logger.Warn("health analysis failed, using fallback", "provider", s.gen.Name(), "error", err)
			ins.Summary = FailedSummary
			ins.Fallback = true
		case strings.TrimSpace(text) == "":
			ins.Summary = EmptySummary
			ins.Fallback = true
		default:
			ins.Summary = strings.TrimSpace(text)
		}
	}
	ins.CreatedAt = s.now().UTC()

	if s.store != nil {
		if err := s.store.SaveInsight(ctx, ins); err != nil {
			s.logger.Warn("failed to store insight", "insight_id", ins.ID, "error", err)
		}
	}
	s.publish(ctx, eventType, ins)
	return ins, nil
}

// Architect generates an agent config from a free-text description. Unlike
// Analyze, a generation failure is returned; its details carry the
// localized "unavailable" reply.
func (s *Service) Architect(ctx context.Context, description string, lang schema.Lang) (*ArchitectResult, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "description is empty")
	}
	if !s.architecting.CompareAndSwap(false, true) {
		return nil, schema.NewError(schema.ErrCodeBusy, "an agent is already being generated")
	}
	defer s.architecting.Store(false)

	stored := &schema.StoredAgentConfig{
		ID:          uuid.NewString(),
		Description: description,
		Lang:        lang,
	}

	if s.gen == nil {
		cfg, _ := MockGenerator{}.GenerateAgentConfig(ctx, description, lang)
		stored.Config = *cfg
		stored.Mock = true
	} else {
		callCtx, cancel := s.withTimeout(ctx)
		cfg, err := s.gen.GenerateAgentConfig(callCtx, description, lang)
		cancel()
		if err != nil {
			s.logger.Error("agent generation failed", "provider", s.gen.Name(), "error", err)
			return nil, schema.NewError(schema.ErrCodeGeneration, "agent generation failed").
				WithCause(err).
				WithDetails(map[string]any{"reply": ArchitectUnavailable(lang)})
		}
		stored.Config = *cfg
	}
	stored.CreatedAt = s.now().UTC()

	if s.store != nil {
		if err := s.store.SaveAgentConfig(ctx, stored); err != nil {
			s.logger.Warn("failed to store agent config", "config_id", stored.ID, "error", err)
		}
	}
	s.publish(ctx, schema.EventAgentConfigCreated, stored)

	return &ArchitectResult{Config: stored, Reply: ArchitectReply(lang, stored.Config.Name)}, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) publish(ctx context.Context, eventType string, payload any) {
	if s.hub == nil {
		return
	}
	err := s.hub.Publish(ctx, streaming.StreamEvent{
		Topic:   schema.TopicInsight,
		Type:    eventType,
		Payload: payload,
		At:      s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to publish generation result", "event_type", eventType, "error", err)
	}
}
