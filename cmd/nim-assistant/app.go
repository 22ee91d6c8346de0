package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/becomeliminal/nim-assistant/assistant"
	"github.com/becomeliminal/nim-assistant/config"
	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/engine"
	"github.com/becomeliminal/nim-assistant/jobs"
	"github.com/becomeliminal/nim-assistant/llm"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/memory/embedder"
	"github.com/becomeliminal/nim-assistant/memory/embedder/mock"
	"github.com/becomeliminal/nim-assistant/memory/embedder/ollama"
	"github.com/becomeliminal/nim-assistant/memory/index/chromem"
	"github.com/becomeliminal/nim-assistant/metrics"
	"github.com/becomeliminal/nim-assistant/notify"
	"github.com/becomeliminal/nim-assistant/priority"
	"github.com/becomeliminal/nim-assistant/store"
	"github.com/becomeliminal/nim-assistant/store/sqlite"
	"github.com/becomeliminal/nim-assistant/tools"
)

// app is every component wired from one configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	store    *sqlite.Store
	memory   *memory.Manager
	priority *priority.Engine
	engine   *engine.Engine
	svc      *assistant.Service
	redis    *redis.Client

	closers []func() error
}

func newApp(cfg *config.Config) (a *app, err error) {
	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a = &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(a.registry)

	a.store, err = sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	emb, err := a.newEmbedder()
	if err != nil {
		return nil, err
	}

	var idx *chromem.Index
	if cfg.Storage.IndexPath != "" {
		idx, err = chromem.NewPersistent(cfg.Storage.IndexPath, chromem.WithLogger(logger))
	} else {
		idx, err = chromem.New(chromem.WithLogger(logger))
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	a.memory = memory.NewManager(a.store, idx, emb, cfg.MemoryConfig(),
		memory.WithLogger(logger), memory.WithMetrics(mt))
	a.priority = priority.New(a.store, a.store, cfg.PriorityConfig(),
		priority.WithLogger(logger), priority.WithMetrics(mt))

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	registry := engine.NewToolRegistry(tools.CreateTools(&tools.Deps{
		Tasks:    a.store,
		Memory:   a.memory,
		Priority: a.priority,
	})...)
	opts := []engine.Option{
		engine.WithMemory(a.memory),
		engine.WithLogger(logger),
		engine.WithMetrics(mt),
		engine.WithAudit(engine.NewSlogAudit(logger)),
	}
	if cfg.Agent.MessagesPerMinute > 0 {
		opts = append(opts, engine.WithGuardrails(engine.NewRateLimiter(cfg.Agent.MessagesPerMinute, cfg.Agent.MessageBurst)))
	}
	threads := store.NewCachedThreads(a.store, cfg.Storage.ThreadCacheTTL)
	a.engine = engine.NewEngine(a.newClient(), registry, threads, engineCfg, opts...)

	a.svc = assistant.New(assistant.Deps{
		Engine:   a.engine,
		Memory:   a.memory,
		Priority: a.priority,
		Tasks:    a.store,
	}, assistant.WithLogger(logger))
	return a, nil
}

func (a *app) newEmbedder() (memory.Embedder, error) {
	ec := a.cfg.Embeddings
	var inner memory.Embedder
	switch ec.Provider {
	case "mock":
		inner = mock.New(ec.Dimensions)
	case "ollama":
		inner = ollama.New(ollama.Config{
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Timeout:    ec.Timeout,
		})
	case "onnx":
		e, closer, err := newONNXEmbedder(ec)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closer)
		inner = e
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", ec.Provider)
	}
	if ec.CacheSize == 0 {
		return inner, nil
	}
	cached, err := embedder.NewCached(inner, ec.CacheSize)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { cached.Close(); return nil })
	return cached, nil
}

// newClient returns the Anthropic client, or one that fails every call
// when no API key is configured so that non-chat commands still work.
func (a *app) newClient() llm.Client {
	ac := a.cfg.Anthropic
	if ac.APIKey == "" {
		a.logger.Warn("no Anthropic API key configured; chat and drafts will be unavailable")
		return unconfiguredClient{}
	}
	return llm.NewAnthropic(ac.APIKey, ac.Model, ac.MaxTokens)
}

type unconfiguredClient struct{}

func (unconfiguredClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return nil, core.NewDependencyError(core.DepGeneration, "generate", errors.New("ANTHROPIC_API_KEY is not set"))
}

// notifier publishes to Redis when configured and logs otherwise.
func (a *app) notifier() notify.Notifier {
	rc := a.cfg.Redis
	if rc.Addr == "" {
		return notify.NewLog(notify.WithLogger(a.logger))
	}
	if a.redis == nil {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		a.closers = append(a.closers, a.redis.Close)
	}
	return notify.NewRedis(a.redis, rc.Channel, notify.WithLogger(a.logger))
}

func (a *app) scheduler() (*jobs.Scheduler, error) {
	jc := a.cfg.Jobs
	return jobs.New(jobs.Config{
		AlertCron:     jc.AlertCron,
		RecomputeCron: jc.RecomputeCron,
		ReconcileCron: jc.ReconcileCron,
	}, jobs.Deps{
		Alerts:    a.priority,
		Recompute: a.priority,
		Reconcile: a.memory,
		Notifier:  a.notifier(),
	}, jobs.WithLogger(a.logger))
}

// Close waits for background work and releases resources in reverse
// order of acquisition.
func (a *app) Close() error {
	if a.svc != nil {
		a.svc.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
