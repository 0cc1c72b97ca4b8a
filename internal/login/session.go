// Package login implements the per-user login state machine and the registry
// that owns in-flight attempts.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sessiongen-telebot/internal/backend"
)

// ErrClosed is returned when an event reaches an attempt that already ended.
var ErrClosed = errors.New("login session closed")

const selfMessage = "Your %s session:\n\n`%s`\n\nSave it securely!"

// Result is what one event did to a Session.
type Result struct {
	Protocol backend.Protocol
	Stage    Stage
	Outcome  Outcome
	// Kind is set for OutcomeRetry, OutcomeFailed and OutcomeCancelled.
	Kind backend.Kind
	Err  error
	// Credential is set for OutcomeCompleted.
	Credential  string
	SavedToSelf bool
}

// Snapshot is a read-only copy of a Session's public state.
type Snapshot struct {
	ID           uuid.UUID
	UserID       int64
	Protocol     backend.Protocol
	Stage        Stage
	CreatedAt    time.Time
	LastActivity time.Time
}

// Session is one login attempt. It is not safe for concurrent use; the
// Registry serializes access per user.
type Session struct {
	ID       uuid.UUID
	UserID   int64
	Protocol backend.Protocol

	adapter     backend.Adapter
	log         *slog.Logger
	now         func() time.Time
	callTimeout time.Duration
	saveToSelf  bool

	// ctx is cancelled by Interrupt and when the attempt ends.
	ctx   context.Context
	abort context.CancelFunc

	stage        Stage
	apiID        int
	apiHash      string
	phone        string
	token        backend.CodeToken
	conn         backend.Conn
	createdAt    time.Time
	lastActivity time.Time
}

func newSession(userID int64, adapter backend.Adapter, opts Options) *Session {
	ctx, abort := context.WithCancel(context.Background())
	id := uuid.New()
	now := opts.Now()
	return &Session{
		ID:          id,
		UserID:      userID,
		Protocol:    adapter.Protocol(),
		adapter:     adapter,
		log:         opts.Logger.With("user", userID, "attempt", id.String(), "protocol", adapter.Protocol().String()),
		now:         opts.Now,
		callTimeout: opts.CallTimeout,
		saveToSelf:  opts.SaveToSelf,
		ctx:         ctx,
		abort:       abort,
		stage:       StageAwaitingAPIID,
		createdAt:   now,
		// lastActivity starts at creation so an untouched attempt still expires.
		lastActivity: now,
	}
}

// Stage returns the current stage.
func (s *Session) Stage() Stage { return s.stage }

// Snapshot copies the public state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:           s.ID,
		UserID:       s.UserID,
		Protocol:     s.Protocol,
		Stage:        s.stage,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

// ProgressFunc is told the stage whose backend call is about to start.
type ProgressFunc func(stage Stage)

// Handle feeds one text message into the state machine.
func (s *Session) Handle(ctx context.Context, text string) (Result, error) {
	return s.handle(ctx, text, nil)
}

func (s *Session) handle(ctx context.Context, text string, progress ProgressFunc) (Result, error) {
	if s.stage.Terminal() {
		return s.result(OutcomeFailed), ErrClosed
	}
	s.touch()
	text = strings.TrimSpace(text)

	switch s.stage {
	case StageAwaitingAPIID:
		id, err := strconv.Atoi(text)
		if err != nil || id <= 0 {
			return s.result(OutcomeInvalidInput), nil
		}
		s.apiID = id
		return s.advance(StageAwaitingAPIHash), nil

	case StageAwaitingAPIHash:
		if text == "" {
			return s.result(OutcomeInvalidInput), nil
		}
		s.apiHash = text
		return s.advance(StageAwaitingPhone), nil

	case StageAwaitingPhone:
		phone, ok := normalizePhone(text)
		if !ok {
			return s.result(OutcomeInvalidInput), nil
		}
		return s.requestCode(ctx, phone, progress), nil

	case StageAwaitingCode:
		code := digitsOnly(text)
		if code == "" {
			return s.result(OutcomeInvalidInput), nil
		}
		return s.submitCode(ctx, code, progress), nil

	case StageAwaitingSecondFactor:
		if text == "" {
			return s.result(OutcomeInvalidInput), nil
		}
		return s.submitSecondFactor(ctx, text, progress), nil
	}
	return s.result(OutcomeFailed), fmt.Errorf("unhandled stage %s", s.stage)
}

func (s *Session) requestCode(ctx context.Context, phone string, progress ProgressFunc) Result {
	if s.interrupted() {
		return s.finish(StageCancelled, backend.KindCancelled, nil)
	}
	if progress != nil {
		progress(s.stage)
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	conn, err := s.adapter.Connect(callCtx, s.apiID, s.apiHash)
	if err != nil {
		return s.fail(err)
	}
	s.conn = conn

	if s.interrupted() {
		return s.finish(StageCancelled, backend.KindCancelled, nil)
	}
	token, err := conn.RequestLoginCode(callCtx, phone)
	if err != nil {
		// No connection outlives AwaitingPhone, even when the user may retry.
		s.disconnect()
		return s.fail(err)
	}
	s.phone = phone
	s.token = token
	return s.advance(StageAwaitingCode)
}

func (s *Session) submitCode(ctx context.Context, code string, progress ProgressFunc) Result {
	if s.interrupted() {
		return s.finish(StageCancelled, backend.KindCancelled, nil)
	}
	if progress != nil {
		progress(s.stage)
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	outcome, err := s.conn.SubmitCode(callCtx, s.phone, s.token, code)
	if err != nil {
		return s.fail(err)
	}
	if outcome == backend.SecondFactorRequired {
		return s.advance(StageAwaitingSecondFactor)
	}
	return s.complete(ctx)
}

func (s *Session) submitSecondFactor(ctx context.Context, secret string, progress ProgressFunc) Result {
	if s.interrupted() {
		return s.finish(StageCancelled, backend.KindCancelled, nil)
	}
	if progress != nil {
		progress(s.stage)
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.conn.SubmitSecondFactor(callCtx, secret); err != nil {
		return s.fail(err)
	}
	return s.complete(ctx)
}

func (s *Session) complete(ctx context.Context) Result {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	cred, err := s.conn.ExportCredential(callCtx)
	if err != nil {
		kind := backend.KindOf(err)
		if s.interrupted() {
			kind = backend.KindCancelled
		}
		stage := StageFailed
		if kind == backend.KindCancelled {
			stage = StageCancelled
		}
		return s.finish(stage, kind, err)
	}

	saved := false
	if s.saveToSelf {
		if err := s.conn.SendToSelf(callCtx, fmt.Sprintf(selfMessage, s.Protocol, cred)); err != nil {
			s.log.Warn("saved messages delivery failed", "error", err)
		} else {
			saved = true
		}
	}

	res := s.finish(StageCompleted, 0, nil)
	res.Credential = cred
	res.SavedToSelf = saved
	return res
}

// fail resolves a backend error: transient errors keep the stage, anything
// else ends the attempt.
func (s *Session) fail(err error) Result {
	if s.interrupted() {
		return s.finish(StageCancelled, backend.KindCancelled, err)
	}
	kind := backend.KindOf(err)
	switch kind {
	case backend.KindTransient:
		s.log.Warn("backend call failed, stage kept", "stage", s.stage.String(), "error", err)
		res := s.result(OutcomeRetry)
		res.Kind = kind
		res.Err = err
		return res
	case backend.KindCancelled:
		return s.finish(StageCancelled, kind, err)
	}
	return s.finish(StageFailed, kind, err)
}

// Cancel ends the attempt on user request.
func (s *Session) Cancel() Result {
	if s.stage.Terminal() {
		return s.result(OutcomeCancelled)
	}
	return s.finish(StageCancelled, backend.KindCancelled, nil)
}

// Expire ends the attempt after inactivity.
func (s *Session) Expire() Result {
	if s.stage.Terminal() {
		return s.result(OutcomeFailed)
	}
	return s.finish(StageFailed, backend.KindTimeout, nil)
}

// Interrupt asks an in-flight backend call to stop and prevents new ones. It
// may be called from any goroutine.
func (s *Session) Interrupt() { s.abort() }

// Expired reports whether the attempt has been idle for at least timeout.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return !s.stage.Terminal() && timeout > 0 && now.Sub(s.lastActivity) >= timeout
}

func (s *Session) interrupted() bool { return s.ctx.Err() != nil }

// callContext derives a context for one backend call bounded by ctx, the
// attempt's own context and the per-call timeout.
func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	if s.callTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.callTimeout)
		return ctx, func() {
			cancelTimeout()
			stop()
			cancel()
		}
	}
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) advance(next Stage) Result {
	s.log.Debug("stage advanced", "from", s.stage.String(), "to", next.String())
	s.stage = next
	s.touch()
	return s.result(OutcomeAdvanced)
}

func (s *Session) finish(stage Stage, kind backend.Kind, err error) Result {
	s.stage = stage
	s.touch()
	s.disconnect()
	s.abort()

	outcome := OutcomeFailed
	switch stage {
	case StageCompleted:
		outcome = OutcomeCompleted
		s.log.Info("login completed", "duration", s.now().Sub(s.createdAt))
	case StageCancelled:
		outcome = OutcomeCancelled
		s.log.Info("login cancelled")
	default:
		s.log.Info("login failed", "kind", kind.String(), "error", err)
	}
	res := s.result(outcome)
	res.Kind = kind
	res.Err = err
	return res
}

// disconnect releases the backend connection exactly once.
func (s *Session) disconnect() {
	if s.conn == nil {
		return
	}
	conn := s.conn
	s.conn = nil
	if err := conn.Disconnect(); err != nil {
		s.log.Warn("backend disconnect failed", "error", err)
	}
}

func (s *Session) touch() { s.lastActivity = s.now() }

func (s *Session) result(o Outcome) Result {
	return Result{Protocol: s.Protocol, Stage: s.stage, Outcome: o}
}

// normalizePhone strips common separators and requires an optional leading
// plus followed by digits.
func normalizePhone(text string) (string, bool) {
	var b strings.Builder
	for i, r := range text {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", false
		}
	}
	phone := b.String()
	if strings.TrimPrefix(phone, "+") == "" {
		return "", false
	}
	return phone, true
}

func digitsOnly(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
