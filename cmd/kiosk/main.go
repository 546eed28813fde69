package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"wiselib/api/internal/config"
	"wiselib/api/internal/kiosk"
	"wiselib/api/internal/log"
	"wiselib/api/internal/scanner"
)

const (
	// pause between a finished scan and re-arming the camera
	rearmDelay = 2 * time.Second
	retryDelay = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel).With().
		Str("component", "kiosk").
		Str("device", cfg.Kiosk.DeviceID).
		Logger()
	if cfg.Security.SignatureSecret == "" {
		logger.Fatal().Msg("security.signaturesecret is required to sign kiosk requests")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := kiosk.NewClient(cfg.Kiosk.APIBase, cfg.Security.SignatureSecret, cfg.Kiosk.DeviceID, cfg.Remote.Timeout)
	sc := scanner.New(
		scanner.DirSource{Root: cfg.Kiosk.CameraRoot},
		scanner.QRDecoder{},
		client,
		scanner.Options{
			MaxAttempts:     cfg.Scanner.MaxAttempts,
			BackoffStep:     cfg.Scanner.BackoffStep,
			InitTimeout:     cfg.Scanner.InitTimeout,
			PollInterval:    cfg.Scanner.PollInterval,
			PreferredLabels: cfg.Scanner.PreferredLabels,
			DiagnosticsSize: cfg.Scanner.DiagnosticsSize,
		},
		logger,
	)
	defer sc.Stop()

	logger.Info().Str("api", cfg.Kiosk.APIBase).Str("cameras", cfg.Kiosk.CameraRoot).Msg("kiosk starting")
	run(ctx, sc, client, logger)
	logger.Info().Msg("kiosk stopped")
}

func run(ctx context.Context, sc *scanner.Scanner, client *kiosk.Client, logger zerolog.Logger) {
	for ctx.Err() == nil {
		if err := sc.Start(ctx); err != nil {
			logger.Error().Err(err).Interface("diagnostics", sc.Diagnostics()).Msg("scanner failed to start")
			if !sleep(ctx, retryDelay) {
				return
			}
			continue
		}

		var out scanner.Outcome
		select {
		case <-ctx.Done():
			return
		case out = <-sc.Results():
		}
		handle(ctx, client, out, logger)

		if !sleep(ctx, rearmDelay) {
			return
		}
	}
}

func handle(ctx context.Context, client *kiosk.Client, out scanner.Outcome, logger zerolog.Logger) {
	if out.State != scanner.StateSuccess {
		var apiErr *kiosk.APIError
		if errors.As(out.Err, &apiErr) {
			logger.Warn().Str("code", apiErr.Code).Msg("badge rejected")
			return
		}
		logger.Error().Err(out.Err).Msg("scan failed")
		return
	}
	if out.Match.Variant != "user" {
		logger.Info().Str("book_id", out.Match.BookID).Msg("book label scanned, ignoring")
		return
	}

	res, err := client.Scan(ctx, out.Match.Payload)
	if err != nil {
		logger.Error().Err(err).Str("user_id", out.Match.UserID).Msg("record visit failed")
		return
	}
	logger.Info().
		Str("user_id", res.Session.UserID).
		Str("name", out.Match.FullName).
		Str("action", res.Action).
		Msg("visit recorded")
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
