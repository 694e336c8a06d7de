// Package di wires the canvas backend together with google/wire.
//
// The injector lives in wire.go (build tag wireinject); wire_gen.go holds the
// generated initializer. Providers here are plain functions so tests and the
// CLI can also call them directly.
package di

import (
	"context"
	"fmt"

	"canvas-backend/internal/config"
	"canvas-backend/internal/history"
	"canvas-backend/internal/identity"
	"canvas-backend/internal/observability"
	"canvas-backend/internal/persistence"
	"canvas-backend/internal/persistence/memory"
	"canvas-backend/internal/persistence/sqlstore"
	"canvas-backend/internal/persistence/supabase"
	"canvas-backend/internal/projects"
	"canvas-backend/internal/session"
	"canvas-backend/internal/templates"
	"canvas-backend/internal/viewport"

	supa "github.com/supabase-community/supabase-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Container holds the wired application.
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Collector
	Tracing   *observability.Tracing
	Gateway   persistence.Gateway
	Identity  identity.Provider
	Projects  *projects.Service
	History   *history.Manager
	Templates *templates.Instantiator
	Sessions  *Sessions
}

// BaseGateway is the storage gateway before any decorator is applied.
type BaseGateway struct {
	persistence.Gateway
}

// ProvideLogger builds the zap logger for the configured environment.
func ProvideLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	logger, err := observability.NewLogger(cfg.Environment, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, func() { _ = logger.Sync() }, nil
}

// ProvideCollector returns the metrics collector, or nil when metrics are
// disabled.
func ProvideCollector(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector(cfg.Metrics.Namespace)
}

// ProvideTracing configures OpenTelemetry.
func ProvideTracing(ctx context.Context, cfg *config.Config) (*observability.Tracing, func(), error) {
	t, err := observability.NewTracing(ctx, cfg.Tracing, cfg.Environment)
	if err != nil {
		return nil, nil, err
	}
	return t, func() { _ = t.Shutdown(context.Background()) }, nil
}

// ProvideTracer exposes the tracer of t.
func ProvideTracer(t *observability.Tracing) trace.Tracer {
	return t.Tracer()
}

// ProvideSupabaseClient returns a client when a Supabase project is
// configured and nil otherwise.
func ProvideSupabaseClient(cfg *config.Config) (*supa.Client, error) {
	if cfg.Persistence.SupabaseURL == "" {
		return nil, nil
	}
	client, err := supa.NewClient(cfg.Persistence.SupabaseURL, cfg.Persistence.SupabaseKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return client, nil
}

// ProvideBaseGateway opens the storage selected by the persistence driver.
func ProvideBaseGateway(ctx context.Context, cfg *config.Config, client *supa.Client, logger *zap.Logger) (BaseGateway, func(), error) {
	noop := func() {}
	switch cfg.Persistence.Driver {
	case config.DriverMemory:
		return BaseGateway{memory.New()}, noop, nil
	case config.DriverSQLite, config.DriverPostgres:
		dialect, err := sqlstore.DialectFor(cfg.Persistence.Driver)
		if err != nil {
			return BaseGateway{}, nil, err
		}
		store, err := sqlstore.Open(ctx, dialect, cfg.Persistence.DSN, sqlstore.WithLogger(logger))
		if err != nil {
			return BaseGateway{}, nil, err
		}
		return BaseGateway{store}, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close database", zap.Error(err))
			}
		}, nil
	case config.DriverSupabase:
		if client == nil {
			return BaseGateway{}, nil, fmt.Errorf("supabase driver needs a project url")
		}
		return BaseGateway{supabase.New(client, logger)}, noop, nil
	default:
		return BaseGateway{}, nil, fmt.Errorf("unknown persistence driver %q", cfg.Persistence.Driver)
	}
}

// ProvideGateway decorates the base gateway with retries, the circuit
// breaker, tracing, metrics and the per-call timeout.
func ProvideGateway(base BaseGateway, cfg *config.Config, metrics *observability.Collector, tracer trace.Tracer, logger *zap.Logger) persistence.Gateway {
	resilient := persistence.NewResilientGateway(base.Gateway, cfg.Breaker, cfg.Session.Retry, metrics, logger)
	return persistence.NewInstrumentedGateway(resilient, metrics, tracer, logger).
		WithTimeout(cfg.Persistence.Timeout)
}

// ProvideIdentity resolves the current user from an access token when one is
// configured together with a Supabase project, and from the configured user
// identifier otherwise.
func ProvideIdentity(cfg *config.Config, client *supa.Client, logger *zap.Logger) identity.Provider {
	if cfg.Identity.AccessToken != "" && client != nil {
		return identity.NewSupabase(client, cfg.Identity.AccessToken, logger)
	}
	return identity.Static(cfg.Identity.UserID)
}

// ProvideProjects creates the project service.
func ProvideProjects(gw persistence.Gateway, ids identity.Provider, logger *zap.Logger) *projects.Service {
	return projects.NewService(gw, ids, logger)
}

// ProvideHistory creates the snapshot manager.
func ProvideHistory(gw persistence.Gateway, ids identity.Provider, logger *zap.Logger, metrics *observability.Collector) *history.Manager {
	return history.NewManager(gw, ids, logger, metrics)
}

// ProvideTemplates creates the template instantiator.
func ProvideTemplates(gw persistence.Gateway, ids identity.Provider, cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) *templates.Instantiator {
	return templates.NewInstantiator(gw, ids, cfg.Templates, logger, metrics)
}

// Sessions opens editing sessions and their viewports.
type Sessions struct {
	gw      persistence.Gateway
	ids     identity.Provider
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Collector
}

// ProvideSessions creates the session factory.
func ProvideSessions(gw persistence.Gateway, ids identity.Provider, cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) *Sessions {
	return &Sessions{gw: gw, ids: ids, cfg: cfg, logger: logger, metrics: metrics}
}

// New returns an unloaded session.
func (s *Sessions) New() *session.Controller {
	return session.New(s.gw, s.ids, s.cfg.Session, session.WithLogger(s.logger), session.WithMetrics(s.metrics))
}

// Open returns a session with projectID loaded.
func (s *Sessions) Open(ctx context.Context, projectID string) (*session.Controller, error) {
	c := s.New()
	if err := c.Load(ctx, projectID); err != nil {
		return nil, err
	}
	return c, nil
}

// Viewport returns a navigation controller over the nodes of c.
func (s *Sessions) Viewport(c *session.Controller) *viewport.Controller {
	return viewport.New(c, s.cfg.Viewport)
}
