package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/vpnlab/subkit/pkg/admin"
	"github.com/vpnlab/subkit/pkg/config"
	"github.com/vpnlab/subkit/pkg/httpserver"
	"github.com/vpnlab/subkit/pkg/ingress"
	"github.com/vpnlab/subkit/pkg/lifecycle"
	"github.com/vpnlab/subkit/pkg/logger"
	"github.com/vpnlab/subkit/pkg/panel"
	"github.com/vpnlab/subkit/pkg/pg"
	"github.com/vpnlab/subkit/pkg/plan"
	"github.com/vpnlab/subkit/pkg/redis"
)

type appConfig struct {
	Env       string `env:"APP_ENV" envDefault:"development"`
	PlansPath string `env:"PLANS_PATH" envDefault:"plans.yaml"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Env, "subkitd"))
	logger.SetAsDefault(log)

	var (
		pgCfg        pg.Config
		redisCfg     redis.Config
		panelCfg     panel.HTTPConfig
		ingressCfg   ingress.Config
		adminCfg     admin.Config
		httpCfg      httpserver.Config
		lifecycleCfg lifecycle.Config
	)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&panelCfg)
	config.MustLoad(&ingressCfg)
	config.MustLoad(&adminCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&lifecycleCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		log.Error("postgres connect failed", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := pg.EnsureSchema(ctx, pool); err != nil {
		log.Error("schema setup failed", logger.Error(err))
		os.Exit(1)
	}
	store := pg.NewStore(pool)

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		log.Error("redis connect failed", logger.Error(err))
		os.Exit(1)
	}
	defer redisClient.Close()
	outcomes := redis.NewOutcomeCache(redisClient, redis.WithLogger(log))

	plans, err := plan.NewCatalog(ctx, plan.NewFileSource(appCfg.PlansPath))
	if err != nil {
		log.Error("plan catalog load failed", logger.Error(err))
		os.Exit(1)
	}

	panelClient, err := panel.NewHTTPClient(panelCfg, panel.WithHTTPLogger(log))
	if err != nil {
		log.Error("panel client setup failed", logger.Error(err))
		os.Exit(1)
	}
	panels := panel.NewPool(panel.WithPoolLogger(log))
	panels.Add(panelClient.PanelID(), panelClient)

	prov := lifecycle.NewProvisioner(panels, panels,
		lifecycle.WithParallelism(lifecycleCfg.Parallelism),
		lifecycle.WithMaxAttempts(lifecycleCfg.MaxAttempts),
		lifecycle.WithCallTimeout(lifecycleCfg.CallTimeout),
		lifecycle.WithProvisionerLogger(log),
	)
	defer prov.Close()

	engine := lifecycle.NewEngine(store, prov, plans,
		lifecycle.WithOutcomeCache(outcomes),
		lifecycle.WithConflictBudget(lifecycleCfg.ConflictBudget),
		lifecycle.WithCredentialFlow(lifecycleCfg.CredentialFlow),
		lifecycle.WithEngineLogger(log),
	)

	// Re-enqueue provisioning intents that were committed before a previous
	// process died; the in-memory queue does not survive restarts.
	if requeued, err := engine.Recover(ctx); err != nil {
		log.Warn("provisioning recovery incomplete", logger.Error(err))
	} else if requeued > 0 {
		log.Info("provisioning recovery requeued actions", slog.Int("requeued", requeued))
	}

	sweeper := lifecycle.NewSweeper(store, engine,
		lifecycle.WithSweepInterval(lifecycleCfg.SweepInterval),
		lifecycle.WithSweeperLogger(log),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
	r.Get("/readyz", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient),
	))
	r.Mount("/webhooks/billing", ingress.NewHandler(engine, ingressCfg, ingress.WithHandlerLogger(log)).Handle())
	r.Mount("/admin", admin.NewHandler(store, adminCfg, admin.WithHandlerLogger(log)).Handle())

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel() // server exit stops the sweeper as well
		return srv.Run(gctx, r)
	})
	g.Go(func() error {
		err := sweeper.Start(gctx)
		if err != nil && gctx.Err() != nil {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("subkitd stopped", logger.Error(err))
		os.Exit(1)
	}
	log.Info("subkitd stopped")
}
