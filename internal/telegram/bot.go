package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sessiongen-telebot/internal/config"
	"sessiongen-telebot/internal/login"
)

type Bot struct {
	api            *tgbotapi.BotAPI
	handler        *Handler
	log            *slog.Logger
	updatesTimeout int
}

func NewBot(cfg *config.Config, registry *login.Registry, logger *slog.Logger) (*Bot, error) {
	if err := tgbotapi.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)); err != nil {
		return nil, fmt.Errorf("bot logger: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("bot init: %w", err)
	}
	api.Debug = cfg.BotDebug

	return &Bot{
		api: api,
		handler: NewHandler(api, registry, HandlerOptions{
			ShowSessionInChat: cfg.ShowSessionInChat,
			Logger:            logger,
		}),
		log:            logger,
		updatesTimeout: cfg.UpdatesTimeoutSeconds,
	}, nil
}

// Run long-polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(botCommands()...)); err != nil {
		b.log.Warn("set bot commands", "error", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.updatesTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.handler.Wait()
	defer b.api.StopReceivingUpdates()

	b.log.Info("bot started", "username", b.api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.handler.Dispatch(ctx, upd)
		}
	}
}

// NotifyExpired forwards sweeper expiries to the user.
func (b *Bot) NotifyExpired(e login.Expired) {
	b.handler.NotifyExpired(e)
}
