package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/rs/zerolog"

	"wiselib/api/internal/app"
	"wiselib/api/internal/config"
	"wiselib/api/internal/handlers"
	"wiselib/api/internal/jobs"
	"wiselib/api/internal/log"
	"wiselib/api/internal/middleware"
	"wiselib/api/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	a.Prepare(ctx)

	go func() {
		if err := a.Hub.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("realtime hub stopped")
		}
	}()

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		PerMinute: cfg.RateLimit.LoginPerMinute,
		Burst:     cfg.RateLimit.LoginBurst,
	})

	handlerSet := handlers.NewHandlerSet(logger, cfg, a.Services, handlers.Deps{
		Users:        a.Users,
		Sessions:     a.Sessions,
		Nonces:       a.Cache,
		Hub:          a.Hub,
		Tasks:        a.Queue,
		LoginLimiter: limiter,
		Database:     a.DB.Ping,
		Cache:        func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet, a.Metrics, a.Registry)

	scheduler := jobs.NewScheduler(a.Queue, cfg.Location(), logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	waitForShutdown(logger, httpServer, scheduler, limiter, a)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, limiter *middleware.RateLimiter, a *app.App) {
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	scheduler.Stop()
	limiter.Stop()
	a.Close()

	logger.Info().Msg("server exited cleanly")
}
