package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradeguard/internal/application"
	"github.com/sawpanic/tradeguard/internal/config"
	httpapi "github.com/sawpanic/tradeguard/internal/interfaces/http"
	applog "github.com/sawpanic/tradeguard/internal/log"
	"github.com/sawpanic/tradeguard/internal/metrics"
	"github.com/sawpanic/tradeguard/internal/persistence/postgres"
	"github.com/sawpanic/tradeguard/internal/persistence/redis"
	"github.com/sawpanic/tradeguard/internal/providers"
)

// app is everything a command needs, built once from the config
type app struct {
	config   *config.Config
	service  *application.Service
	registry *metrics.Registry
	health   *httpapi.HealthHandler
	closers  []func() error
}

// buildApp wires storage, guarded providers and the service; call close when done
func buildApp(ctx context.Context, cfg *config.Config, withRuntimeMetrics bool) (*app, error) {
	steps := applog.NewStepLogger("startup", []string{"pipeline", "storage", "providers", "service"})
	a := &app{
		config:   cfg,
		registry: metrics.NewRegistry(withRuntimeMetrics),
		health:   httpapi.NewHealthHandler(version),
	}
	fail := func(err error) (*app, error) {
		steps.Fail(err)
		a.close()
		return nil, err
	}

	steps.StartStep("pipeline")
	components, err := application.NewPipeline(cfg.Extractor, cfg.Filter, cfg.Scorer, cfg.Gate, cfg.Backtest)
	if err != nil {
		return fail(err)
	}

	steps.StartStep("storage")
	deps := application.Dependencies{Recorder: a.registry}
	if err := a.openStorage(ctx, &deps); err != nil {
		return fail(err)
	}

	steps.StartStep("providers")
	if err := a.openProviders(&deps); err != nil {
		return fail(err)
	}

	steps.StartStep("service")
	a.service, err = application.NewService(cfg.Service, components, deps)
	if err != nil {
		return fail(err)
	}
	steps.Finish()
	return a, nil
}

func (a *app) openStorage(ctx context.Context, deps *application.Dependencies) error {
	pg := a.config.Storage.Postgres
	if pg.Enabled {
		manager, err := postgres.NewManager(ctx, pg)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, manager.Close)
		a.health.AddRepository("postgres", manager.Health())
		deps.Snapshots = manager.Snapshots()
		log.Info().Bool("migrate", pg.Migrate).Msg("Snapshot store: postgres")
	} else {
		log.Info().Msg("Snapshot store: in-memory")
	}

	rc := a.config.Storage.Redis
	if rc.Enabled {
		client, err := redis.Open(ctx, rc)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		a.health.AddCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
		deps.Baselines = redis.NewBaselineStore(client, rc)
		log.Info().Str("addr", rc.Addr).Msg("Baseline store: redis")
	} else {
		log.Info().Msg("Baseline store: in-memory")
	}
	return nil
}

func (a *app) openProviders(deps *application.Dependencies) error {
	p := a.config.Providers

	guard := func(src config.SourceConfig) (*providers.Guard, error) {
		g, err := providers.NewGuard(src.ProviderConfig, a.registry)
		if err != nil {
			return nil, err
		}
		a.health.AddProvider(g)
		return g, nil
	}

	if p.Social.Path != "" {
		g, err := guard(p.Social)
		if err != nil {
			return err
		}
		deps.Social = providers.NewGuardedSocialSource(providers.NewFileSocialSource(p.Social.Path), g)
	}
	if p.Account.Path != "" {
		g, err := guard(p.Account)
		if err != nil {
			return err
		}
		deps.Account = providers.NewGuardedAccountSource(providers.NewFileAccountSource(p.Account.Path), g)
	}
	if p.Prices.Path != "" {
		g, err := guard(p.Prices)
		if err != nil {
			return err
		}
		deps.Prices = providers.NewGuardedPriceSource(providers.NewFilePriceSource(p.Prices.Path), g)
	}

	log.Info().
		Bool("social", deps.Social != nil).
		Bool("account", deps.Account != nil).
		Bool("prices", deps.Prices != nil).
		Msg("Providers configured")
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}
