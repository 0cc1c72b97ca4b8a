package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sessiongen-telebot/internal/backend"
	"sessiongen-telebot/internal/login"
)

// Sender is the part of *tgbotapi.BotAPI the handler talks to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type HandlerOptions struct {
	// ShowSessionInChat sends the credential into the bot chat.
	ShowSessionInChat bool
	// QueueSize bounds the pending events per chat.
	QueueSize int
	Logger    *slog.Logger
}

// Handler routes updates to the login registry and answers the user.
type Handler struct {
	sender   Sender
	registry *login.Registry
	opts     HandlerOptions
	log      *slog.Logger

	mu    sync.Mutex
	chats map[int64]*chatSession
	wg    sync.WaitGroup
}

func NewHandler(sender Sender, registry *login.Registry, opts HandlerOptions) *Handler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 8
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		sender:   sender,
		registry: registry,
		opts:     opts,
		log:      opts.Logger,
		chats:    make(map[int64]*chatSession),
	}
}

// Dispatch queues u for its chat's worker and returns immediately. Events of
// one chat are handled in arrival order; different chats run in parallel.
func (h *Handler) Dispatch(ctx context.Context, u tgbotapi.Update) {
	ev, ok := eventFromUpdate(u)
	if !ok {
		return
	}

	h.mu.Lock()
	cs, ok := h.chats[ev.chatID]
	if !ok {
		cs = newChatSession(h.opts.QueueSize)
		h.chats[ev.chatID] = cs
		h.wg.Add(1)
		go h.work(ctx, ev.chatID, cs)
	}
	if ev.plain() && cs.busy.Load() {
		h.mu.Unlock()
		h.reply(ev.chatID, msgBusy)
		return
	}
	select {
	case cs.queue <- ev:
		if ev.interrupts() {
			// Still under h.mu, so the worker cannot pick ev up and start a
			// new attempt before the current one is interrupted.
			cs.pending.Add(1)
			h.registry.Interrupt(ev.chatID)
		}
		h.mu.Unlock()
	default:
		h.mu.Unlock()
		h.log.Warn("chat queue full, event dropped", "user", ev.chatID)
		h.reply(ev.chatID, msgBusy)
	}
}

func (h *Handler) work(ctx context.Context, chatID int64, cs *chatSession) {
	defer h.wg.Done()
	for {
		h.mu.Lock()
		select {
		case ev := <-cs.queue:
			h.mu.Unlock()
			h.handle(ctx, ev, cs)
		default:
			delete(h.chats, chatID)
			h.mu.Unlock()
			return
		}
	}
}

// Wait blocks until every queued event has been handled.
func (h *Handler) Wait() { h.wg.Wait() }

// HandleUpdate handles u synchronously on the calling goroutine.
func (h *Handler) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	ev, ok := eventFromUpdate(u)
	if !ok {
		return
	}
	h.handle(ctx, ev, nil)
}

func (h *Handler) handle(ctx context.Context, ev event, cs *chatSession) {
	interrupted := false
	if cs != nil && ev.interrupts() {
		cs.pending.Add(-1)
		interrupted = cs.takeInterrupted()
	}
	switch {
	case ev.callbackID != "":
		h.answerCallback(ev.callbackID)
		h.handleAction(ev.chatID, ev.data, interrupted)
	case ev.command != "":
		h.handleCommand(ev.chatID, ev.command, interrupted)
	default:
		h.handleText(ctx, ev.chatID, ev.text, cs)
	}
}

// interrupted reports that this event already stopped an attempt mid-call.
func (h *Handler) handleCommand(chatID int64, command string, interrupted bool) {
	switch command {
	case "start", "help":
		h.replyWith(chatID, msgWelcome, protocolKeyboard())
	case "pyro", "pyrogram":
		h.startLogin(chatID, backend.Pyrogram, interrupted)
	case "tele", "telethon":
		h.startLogin(chatID, backend.Telethon, interrupted)
	case "cancel":
		h.cancelLogin(chatID, interrupted)
	default:
		h.log.Debug("unknown command ignored", "user", chatID, "command", command)
	}
}

func (h *Handler) handleAction(chatID int64, data string, interrupted bool) {
	switch {
	case data == dataCancel:
		h.cancelLogin(chatID, interrupted)
	case strings.HasPrefix(data, dataProto):
		p, ok := backend.ParseProtocol(strings.TrimPrefix(data, dataProto))
		if !ok {
			h.log.Warn("unknown protocol in callback", "user", chatID, "data", data)
			return
		}
		h.startLogin(chatID, p, interrupted)
	}
}

func (h *Handler) startLogin(chatID int64, p backend.Protocol, interrupted bool) {
	_, replaced, err := h.registry.Start(chatID, p)
	if err != nil {
		h.log.Error("start login", "user", chatID, "protocol", p.String(), "error", err)
		h.reply(chatID, msgStartErr)
		return
	}
	h.replyWith(chatID, startMessage(p, replaced || interrupted), cancelKeyboard())
}

func (h *Handler) cancelLogin(chatID int64, interrupted bool) {
	if _, ok := h.registry.Cancel(chatID); !ok && !interrupted {
		h.reply(chatID, msgNoLogin)
		return
	}
	h.reply(chatID, msgCancelled)
}

func (h *Handler) handleText(ctx context.Context, chatID int64, text string, cs *chatSession) {
	progress := func(stage login.Stage) {
		if cs != nil {
			cs.busy.Store(true)
		}
		if msg := progressMessage(stage); msg != "" {
			h.reply(chatID, msg)
		}
	}
	if cs != nil {
		defer cs.busy.Store(false)
	}

	res, err := h.registry.HandleWithProgress(ctx, chatID, text, progress)
	switch {
	case errors.Is(err, login.ErrNoSession), errors.Is(err, login.ErrClosed):
		return
	case err != nil:
		h.log.Error("handle text", "user", chatID, "error", err)
		return
	}
	if res.Outcome == login.OutcomeCancelled && cs != nil && cs.pending.Load() > 0 {
		// The queued interrupting event replies for the cancelled attempt.
		cs.interrupted = true
		return
	}
	h.replyResult(chatID, res)
}

func (h *Handler) replyResult(chatID int64, res login.Result) {
	switch res.Outcome {
	case login.OutcomeAdvanced:
		h.replyWith(chatID, prompt(res.Stage), cancelKeyboard())
	case login.OutcomeInvalidInput:
		h.replyWith(chatID, reprompt(res.Stage), cancelKeyboard())
	case login.OutcomeRetry:
		h.replyWith(chatID, msgRetry+"\n"+prompt(res.Stage), cancelKeyboard())
	case login.OutcomeCompleted:
		h.deliver(chatID, res)
	case login.OutcomeCancelled:
		h.reply(chatID, msgCancelled)
	case login.OutcomeFailed:
		h.reply(chatID, failureMessage(res.Kind))
	}
}

// deliver hands the credential over. It falls back to the chat when the
// Saved Messages copy was not made.
func (h *Handler) deliver(chatID int64, res login.Result) {
	if h.opts.ShowSessionInChat || !res.SavedToSelf {
		h.reply(chatID, fmt.Sprintf(msgSession, res.Protocol, res.Credential))
	}
	if res.SavedToSelf {
		h.reply(chatID, msgSavedToSelf)
		return
	}
	h.reply(chatID, msgSessionReady)
}

// NotifyExpired tells the user their attempt timed out, unless a newer
// attempt has started since.
func (h *Handler) NotifyExpired(e login.Expired) {
	h.log.Info("login expired", "user", e.Snapshot.UserID, "stage", e.Snapshot.Stage.String())
	if cur, ok := h.registry.Get(e.Snapshot.UserID); ok && cur.ID != e.Snapshot.ID {
		h.log.Debug("expiry notice skipped, newer attempt running", "user", e.Snapshot.UserID)
		return
	}
	h.reply(e.Snapshot.UserID, failureMessage(e.Result.Kind))
}

func (h *Handler) answerCallback(id string) {
	if _, err := h.sender.Request(tgbotapi.NewCallback(id, "")); err != nil {
		h.log.Warn("answer callback", "error", err)
	}
}

func (h *Handler) reply(chatID int64, text string) {
	h.replyWith(chatID, text, nil)
}

func (h *Handler) replyWith(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := h.sender.Send(msg); err != nil {
		h.log.Warn("telegram send error", "user", chatID, "error", err)
	}
}
