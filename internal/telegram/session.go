package telegram

import (
	"strings"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// event is one inbound update reduced to what the dispatcher needs.
type event struct {
	chatID     int64
	text       string
	command    string
	callbackID string
	data       string
}

func eventFromUpdate(u tgbotapi.Update) (event, bool) {
	switch {
	case u.Message != nil:
		m := u.Message
		if m.Chat == nil || !m.Chat.IsPrivate() {
			return event{}, false
		}
		ev := event{chatID: m.Chat.ID, text: m.Text}
		if m.IsCommand() {
			ev.command = strings.ToLower(m.Command())
		}
		return ev, true

	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.Message == nil || q.Message.Chat == nil || !q.Message.Chat.IsPrivate() {
			return event{}, false
		}
		return event{chatID: q.Message.Chat.ID, callbackID: q.ID, data: q.Data}, true
	}
	return event{}, false
}

// plain reports whether ev is free text meant for the state machine.
func (ev event) plain() bool {
	return ev.command == "" && ev.callbackID == ""
}

// interrupts reports whether ev ends the current attempt, so an in-flight
// backend call for the user should stop right away.
func (ev event) interrupts() bool {
	switch ev.command {
	case "cancel", "pyro", "pyrogram", "tele", "telethon":
		return true
	}
	return ev.data == dataCancel || strings.HasPrefix(ev.data, dataProto)
}

// chatSession is the ordered event queue of one private chat. Its worker
// exits as soon as the queue is empty.
type chatSession struct {
	queue chan event
	// busy is set while a backend call runs for this chat.
	busy atomic.Bool
	// pending counts queued events that interrupt the current attempt.
	pending atomic.Int32
	// interrupted is set by the worker when an in-flight call ended because
	// of a queued interrupting event, which then answers for it.
	interrupted bool
}

// takeInterrupted consumes the interrupted mark. Worker only.
func (cs *chatSession) takeInterrupted() bool {
	v := cs.interrupted
	cs.interrupted = false
	return v
}

func newChatSession(size int) *chatSession {
	return &chatSession{queue: make(chan event, size)}
}
