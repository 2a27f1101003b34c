package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"hookrelay/internal/api"
	"hookrelay/internal/api/handlers"
	"hookrelay/internal/api/middleware"
	"hookrelay/internal/engine/catalog"
	"hookrelay/internal/engine/webhooks"
	"hookrelay/internal/pkg/logger"
	"hookrelay/internal/platform/auth"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/metrics"
	"hookrelay/internal/platform/repositories"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	cat, err := catalog.New(cfg.Events)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid event catalog")
	}

	metrics.RegisterDefault()

	checks := map[string]handlers.HealthCheck{"database": db.PingContext}

	var rdb *redis.Client
	if cfg.Webhooks.Backend == config.BackendRedis {
		rdb, err = database.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Repositories
	store := repositories.NewHookRepository(db)

	// Delivery
	deliverer := webhooks.NewDeliverer(store, webhooks.DelivererConfigFrom(cfg.Webhooks))
	dispatcher, err := webhooks.NewDispatcher(cfg.Webhooks, deliverer, rdb, cfg.Redis.KeyPrefix)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build dispatcher")
	}
	// detached from ctx so a signal drains through Stop instead of aborting jobs
	if err := dispatcher.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to start dispatcher")
	}

	notifier := webhooks.NewNotifier(cat, store, webhooks.NewSerializer(nil), dispatcher)

	// Router
	deps := &api.Dependencies{
		HookHandler:    handlers.NewHookHandler(webhooks.NewSubscriptions(cat, store), cfg.Webhooks.SigningSecret),
		EventHandler:   handlers.NewEventHandler(cat, notifier),
		HealthHandler:  handlers.NewHealthHandler(checks),
		MetricsHandler: handlers.NewMetricsHandler(),
		AuthMiddleware: middleware.NewAuthMiddleware(auth.NewTokenService(cfg.JWT)),
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("backend", cfg.Webhooks.Backend).
			Int("events", cat.Len()).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if stopErr := dispatcher.Stop(shutdownCtx); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}
