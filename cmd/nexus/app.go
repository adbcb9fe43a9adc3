package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rendis/nexus/internal/engine"
	"github.com/rendis/nexus/internal/expressions"
	"github.com/rendis/nexus/internal/feed"
	"github.com/rendis/nexus/internal/insight"
	"github.com/rendis/nexus/internal/ontology"
	"github.com/rendis/nexus/internal/panel"
	"github.com/rendis/nexus/internal/scheduler"
	"github.com/rendis/nexus/internal/secrets"
	"github.com/rendis/nexus/internal/store"
	"github.com/rendis/nexus/internal/streaming"
	"github.com/rendis/nexus/internal/telemetry"
	"github.com/rendis/nexus/internal/validation"
	nexusmcp "github.com/rendis/nexus/pkg/mcp"
	"github.com/rendis/nexus/pkg/schema"
)

// healthReportEntries is the number of feed entries summarized per scheduled report.
const healthReportEntries = 20

// app holds every wired component of a running nexus process.
type app struct {
	cfg    Config
	logger *slog.Logger
	lang   schema.Lang

	store    *store.LibSQLStore
	events   *store.EventLog
	vault    secrets.Vault
	hub      streaming.EventHub
	redis    *streaming.RedisHub
	metrics  *telemetry.Metrics
	machine  *engine.Machine
	driver   *scheduler.Driver
	feed     *feed.Feed
	insight  *insight.Service
	queries  *expressions.Registry
	validate *validation.JSONSchemaValidator
	ontology *ontology.Graph
	health   *scheduler.HealthReporter
}

// newApp opens the store and wires every component. Nothing is started.
func newApp(ctx context.Context, c Config, logger *slog.Logger) (*app, error) {
	lang := schema.ParseLang(c.Lang)
	policy, err := engine.ParseJoinPolicy(c.JoinPolicy)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: c, logger: logger, lang: lang, ontology: ontology.Default()}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openVault(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openHub(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.machine = engine.NewMachine(engine.MachineOptions{
		Policy:   policy,
		Appender: a.events,
		Logger:   logger.With(slog.String("component", "fsm")),
	})
	a.machine.OnTransition(a.metrics.TransitionHook())
	a.metrics.ObserveSnapshot(a.machine.Snapshot())

	a.driver = scheduler.NewDriver(scheduler.DriverDeps{
		Machine: a.machine,
		Hub:     a.hub,
		Logger:  logger.With(slog.String("component", "driver")),
		Period:  time.Duration(c.TickPeriod),
		OnTick:  a.metrics.ObserveTick,
	})

	feedDeps := feed.Deps{
		Generator: feed.NewGenerator(c.Seed, nil),
		Hub:       a.hub,
		Logger:    logger.With(slog.String("component", "feed")),
		Period:    time.Duration(c.LogPeriod),
		OnEntry:   a.metrics.ObserveLogEntry,
	}
	if c.PersistLogs {
		feedDeps.Appender = a.events
	}
	a.feed = feed.New(feedDeps)

	if a.validate, err = validation.NewJSONSchemaValidator(); err != nil {
		a.Close()
		return nil, err
	}
	if a.queries, err = expressions.NewRegistry(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildInsight(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if c.HealthCron != "" {
		a.health, err = scheduler.NewHealthReporter(c.HealthCron, a.report,
			logger.With(slog.String("component", "health")))
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if dir := filepath.Dir(a.cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	s, err := store.NewLibSQLStore("file:" + a.cfg.DBPath)
	if err != nil {
		return err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return err
	}
	a.store = s
	a.events = store.NewEventLog(s)
	return nil
}

// openVault is a no-op without a passphrase; API keys then come only from
// the config.
func (a *app) openVault(ctx context.Context) error {
	if a.cfg.VaultPassphrase == "" {
		return nil
	}
	v, err := secrets.NewAESVault(ctx, a.store, secrets.VaultConfig{Passphrase: a.cfg.VaultPassphrase})
	if err != nil {
		return err
	}
	a.vault = v
	return nil
}

func (a *app) openHub(ctx context.Context) error {
	if a.cfg.RedisURL == "" {
		mem := streaming.NewMemoryHub()
		a.hub = mem
		a.metrics = telemetry.New(mem)
		return nil
	}
	rh, err := streaming.NewRedisHub(a.cfg.RedisURL,
		streaming.WithRedisLogger(a.logger.With(slog.String("component", "hub"))))
	if err != nil {
		return err
	}
	if err := rh.Ping(ctx); err != nil {
		_ = rh.Close()
		return schema.NewError(schema.ErrCodeStore, "redis hub unreachable").WithCause(err)
	}
	a.hub = rh
	a.redis = rh
	a.metrics = telemetry.New(nil)
	return nil
}

// resolveAPIKey prefers the configured key and falls back to the vault.
func (a *app) resolveAPIKey(ctx context.Context) (string, error) {
	if key := a.cfg.apiKey(); key != "" {
		return key, nil
	}
	name := secrets.KeyGeminiAPIKey
	if a.cfg.Provider == insight.ProviderOpenAI {
		name = secrets.KeyOpenAIAPIKey
	}
	key, _, err := secrets.ResolveString(ctx, a.vault, name)
	return key, err
}

func (a *app) buildInsight(ctx context.Context) error {
	key, err := a.resolveAPIKey(ctx)
	if err != nil {
		return err
	}
	model, err := insight.NewModel(ctx, insight.ModelConfig{
		Provider: a.cfg.Provider,
		Model:    a.cfg.Model,
		APIKey:   key,
		BaseURL:  a.cfg.OpenAIBaseURL,
	})
	if err != nil {
		return err
	}
	deps := insight.Deps{
		Store:   a.store,
		Hub:     a.hub,
		Logger:  a.logger.With(slog.String("component", "insight")),
		Timeout: time.Duration(a.cfg.GenerationTimeout),
	}
	if model != nil {
		gen := insight.NewBreaker(insight.NewLLMGenerator(model, a.validate), insight.BreakerConfig{})
		deps.Generator = a.metrics.InstrumentGenerator(gen)
	} else {
		a.logger.Warn("no API key configured, insight and architect answer with canned content",
			slog.String("provider", a.cfg.Provider))
	}
	a.insight = insight.NewService(deps)
	return nil
}

// report summarizes the latest feed entries.
func (a *app) report(ctx context.Context) error {
	entries := a.feed.Latest(healthReportEntries)
	if len(entries) == 0 {
		return nil
	}
	_, err := a.insight.Report(ctx, feed.Format(entries))
	return err
}

// startBackground starts the tick loop, the log feed and the health
// reporter according to the config.
func (a *app) startBackground(ctx context.Context) error {
	if a.cfg.AutoStart {
		if err := a.driver.Start(ctx); err != nil {
			return err
		}
		if err := a.feed.Start(ctx); err != nil {
			return err
		}
	}
	if a.health != nil {
		if err := a.health.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) panelServer() *panel.Server {
	return panel.NewServer(panel.Deps{
		Driver:        a.driver,
		Feed:          a.feed,
		Insight:       a.insight,
		Archive:       a.store,
		Hub:           a.hub,
		Validator:     a.validate,
		Queries:       a.queries,
		Ontology:      a.ontology,
		Metrics:       a.metrics,
		Logger:        a.logger.With(slog.String("component", "panel")),
		Lang:          a.lang,
		MermaidBinDir: a.cfg.MermaidBinDir,
		Seed:          a.cfg.Seed,
	})
}

func (a *app) mcpServer() *nexusmcp.NexusServer {
	return nexusmcp.NewNexusServer(nexusmcp.Deps{
		Driver:   a.driver,
		Feed:     a.feed,
		Insight:  a.insight,
		Queries:  a.queries,
		History:  a.store,
		Hub:      a.hub,
		Ontology: a.ontology,
		Logger:   a.logger.With(slog.String("component", "mcp")),
		Lang:     a.lang,
	})
}

// Close stops background work and releases the store and hub.
func (a *app) Close() error {
	if a.health != nil {
		a.health.Stop()
	}
	if a.feed != nil {
		a.feed.Stop()
	}
	if a.driver != nil {
		a.driver.Stop()
	}
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
