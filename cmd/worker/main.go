package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"hookrelay/internal/api/handlers"
	"hookrelay/internal/engine/webhooks"
	"hookrelay/internal/pkg/logger"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/metrics"
	"hookrelay/internal/platform/repositories"
)

// The worker drains the Redis delivery queue filled by a server running the
// redis backend.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	metricsAddr := flag.String("metrics-addr", ":9091", "Address to expose /metrics on, empty to disable")
	drain := flag.Duration("drain-timeout", 30*time.Second, "How long in-flight deliveries may run after a shutdown signal")
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

	rdb, err := database.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	metrics.RegisterDefault()

	store := repositories.NewHookRepository(db)
	deliverer := webhooks.NewDeliverer(store, webhooks.DelivererConfigFrom(cfg.Webhooks))
	queue := webhooks.NewQueueDispatcher(rdb, deliverer, webhooks.QueueOptions{KeyPrefix: cfg.Redis.KeyPrefix})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("key", webhooks.QueueKey(cfg.Redis.KeyPrefix)).
			Int("workers", cfg.Webhooks.WorkerCount).
			Msg("webhook worker starting")
		queue.Consume(gctx, cfg.Webhooks.WorkerCount, *drain)
		return nil
	})

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: http.HandlerFunc(handlers.NewMetricsHandler().Export)}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("webhook worker stopped")
}
