package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"wiselib/api/internal/app"
	"wiselib/api/internal/config"
	"wiselib/api/internal/log"
	"wiselib/api/internal/queue"
	"wiselib/api/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel).With().Str("component", "worker").Logger()
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// migrations are owned by the api
	cfg.Postgres.AutoMigrate = false
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	svc := a.Services
	processor := tasks.NewProcessor(svc.Borrows, svc.Library, svc.Stats, svc.Notifications, a.Metrics, logger)
	consumer := queue.NewConsumer(
		a.Redis,
		cfg.Worker.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
