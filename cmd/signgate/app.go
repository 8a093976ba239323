package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/signgate/internal/apikey"
	"github.com/vyrodovalexey/signgate/internal/config"
	"github.com/vyrodovalexey/signgate/internal/health"
	"github.com/vyrodovalexey/signgate/internal/keysource"
	"github.com/vyrodovalexey/signgate/internal/middleware"
	"github.com/vyrodovalexey/signgate/internal/nonce"
	"github.com/vyrodovalexey/signgate/internal/observability"
	"github.com/vyrodovalexey/signgate/internal/retry"
	"github.com/vyrodovalexey/signgate/internal/server"
)

// application holds all application components.
type application struct {
	cfg       *config.Config
	logger    observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	store     nonce.Store
	keys      *apikey.Registry
	loader    *keysource.Loader
	refresher *keysource.Refresher
	watcher   *keysource.FileWatcher
	health    *health.Checker
	server    *server.Server
}

// componentMetrics groups the per-package metrics.
type componentMetrics struct {
	apikey    *apikey.Metrics
	nonce     *nonce.Metrics
	gate      *middleware.Metrics
	health    *health.Metrics
	keysource *keysource.Metrics
}

// newApplication builds every component. Keys are loaded once before the
// server is built; a failure at any step releases what was already
// created.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	app := &application{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics("signgate"),
		keys:    apikey.NewRegistry(),
	}
	if err := app.build(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *application) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	a.metrics.SetBuildInfo(version, gitCommit, buildTime)

	cm, err := registerMetrics(a.metrics)
	if err != nil {
		return err
	}

	a.tracer, err = observability.NewTracer(ctx, observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	a.store, err = nonce.New(ctx, cfg.NonceStore, logger, cm.nonce)
	if err != nil {
		return err
	}

	sources, err := keysource.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure key sources: %w", err)
	}
	a.loader = keysource.NewLoader(sources,
		keysource.WithLogger(logger),
		keysource.WithMetrics(cm.keysource),
		keysource.WithRetry(retry.FromConfig(cfg.KeySources.Retry)),
	)
	if err := a.loader.LoadInto(ctx, a.keys); err != nil {
		return fmt.Errorf("failed to load api keys: %w", err)
	}

	validators, err := buildValidators(cfg, a.keys, a.store, logger, cm.apikey)
	if err != nil {
		return err
	}

	a.health = health.NewChecker(version,
		health.WithLogger(logger),
		health.WithMetrics(cm.health),
	)
	registerHealthChecks(a.health, a.store, sources, a.keys)

	deps := server.Deps{
		Logger:      logger,
		Metrics:     a.metrics,
		GateMetrics: cm.gate,
		Validators:  validators,
		Health:      a.health,
		Tracer:      a.tracer,
	}
	if cfg.Metrics.Enabled {
		deps.MetricsPath = cfg.Metrics.Path
	}

	a.server, err = server.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	if cfg.KeySources.RefreshSchedule != "" {
		a.refresher, err = keysource.NewRefresher(a.loader, a.keys, cfg.KeySources.RefreshSchedule, logger)
		if err != nil {
			return err
		}
	}

	return nil
}

// registerMetrics creates the component metrics and registers them with
// the process registry.
func registerMetrics(m *observability.Metrics) (componentMetrics, error) {
	cm := componentMetrics{
		apikey:    apikey.NewMetrics(""),
		nonce:     nonce.NewMetrics(""),
		gate:      middleware.NewMetrics(""),
		health:    health.NewMetrics(""),
		keysource: keysource.NewMetrics(""),
	}
	cm.apikey.Init()

	groups := [][]prometheus.Collector{
		cm.apikey.Collectors(),
		cm.nonce.Collectors(),
		cm.gate.Collectors(),
		cm.health.Collectors(),
		cm.keysource.Collectors(),
	}
	for _, g := range groups {
		if err := m.RegisterCollectors(g...); err != nil {
			return cm, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return cm, nil
}

func buildValidators(
	cfg *config.Config,
	keys *apikey.Registry,
	store nonce.Store,
	logger observability.Logger,
	metrics *apikey.Metrics,
) ([]apikey.Validator, error) {
	opts := []apikey.Option{apikey.WithLogger(logger), apikey.WithMetrics(metrics)}

	simple := apikey.NewSimpleValidator(apikey.SimpleConfigFrom(cfg.APIKeys), keys, opts...)

	complexCfg := apikey.ComplexConfigFrom(cfg.APIKeys)
	complexV, err := apikey.NewComplexValidator(complexCfg, keys, store, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build complex validator: %w", err)
	}

	if complexCfg.FailOpen {
		logger.Warn("nonce store failures will admit signed requests",
			observability.String("store_failure_policy", config.FailOpen),
		)
	}

	return []apikey.Validator{simple, complexV}, nil
}

// registerHealthChecks adds a readiness check per external dependency.
func registerHealthChecks(
	checker *health.Checker,
	store nonce.Store,
	sources []keysource.Source,
	keys *apikey.Registry,
) {
	if p, ok := store.(health.Pinger); ok {
		checker.Register(health.PingCheck("nonce-store", p))
	}

	for _, src := range sources {
		if s, ok := src.(*keysource.SQLSource); ok {
			checker.Register(health.SQLHealthCheck("key-database", s.DB(), health.WithCritical(false)))
		}
	}

	checker.Register(health.KeysLoadedCheck("api-keys", func() int {
		return keys.Count(apikey.SchemeSimple) + keys.Count(apikey.SchemeComplex)
	}, health.WithCritical(false)))
}

// start starts the server and the key reload triggers.
func (a *application) start(ctx context.Context) error {
	if err := a.server.Start(ctx); err != nil {
		return err
	}

	if a.refresher != nil {
		if err := a.refresher.Start(ctx); err != nil {
			return err
		}
	}

	if path := a.cfg.KeySources.File; path != "" {
		watcher, err := keysource.NewFileWatcher(path,
			func(ctx context.Context) error { return a.loader.LoadInto(ctx, a.keys) },
			keysource.WithWatcherLogger(a.logger),
		)
		if err != nil {
			a.logger.Warn("failed to create keys file watcher", observability.Error(err))
			return nil
		}
		if err := watcher.Start(ctx); err != nil {
			a.logger.Warn("failed to start keys file watcher", observability.Error(err))
			_ = watcher.Stop()
			return nil
		}
		a.watcher = watcher
	}

	return nil
}

// close stops every component that was created, in reverse order.
func (a *application) close(ctx context.Context) {
	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	if a.refresher != nil {
		a.refresher.Stop()
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("failed to stop server gracefully", observability.Error(err))
		}
	}
	if a.loader != nil {
		if err := a.loader.Close(); err != nil {
			a.logger.Error("failed to close key sources", observability.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close nonce store", observability.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}
}
