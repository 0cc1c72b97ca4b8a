package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"sessiongen-telebot/internal/backend"
	"sessiongen-telebot/internal/backend/mtproto"
	"sessiongen-telebot/internal/config"
	"sessiongen-telebot/internal/logging"
	"sessiongen-telebot/internal/login"
	"sessiongen-telebot/internal/telegram"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	mtOpts := mtproto.Options{Test: cfg.MTProtoTestDC, Logger: logger}
	registry := login.NewRegistry([]backend.Adapter{
		mtproto.NewPyrogram(mtOpts),
		mtproto.NewTelethon(mtOpts),
	}, login.Options{
		Timeout:     cfg.SessionTimeout(),
		CallTimeout: cfg.BackendTimeout(),
		SaveToSelf:  cfg.SaveToSavedMessages,
		Logger:      logger,
	})
	defer registry.Close()

	bot, err := telegram.NewBot(cfg, registry, logger)
	if err != nil {
		logger.Error("bot init", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return bot.Run(ctx)
	})
	g.Go(func() error { return registry.Run(ctx, cfg.SweepInterval(), bot.NotifyExpired) })

	logger.Info("bot running", "test_dc", cfg.MTProtoTestDC, "session_timeout", cfg.SessionTimeout())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bot run", "error", err)
		registry.Close()
		os.Exit(1)
	}
	logger.Info("bot stopped")
}
