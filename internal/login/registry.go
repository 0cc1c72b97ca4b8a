package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sessiongen-telebot/internal/backend"
)

var (
	ErrNoSession       = errors.New("no active login session")
	ErrUnknownProtocol = errors.New("unknown protocol")
)

// Options configures a Registry and the sessions it creates.
type Options struct {
	// Timeout is the inactivity window after which an attempt fails.
	// Zero disables expiry.
	Timeout time.Duration
	// CallTimeout bounds every backend call. Zero means no extra bound.
	CallTimeout time.Duration
	// SaveToSelf posts the credential to the account's Saved Messages.
	SaveToSelf bool
	Logger     *slog.Logger
	Now        func() time.Time
}

// Expired describes an attempt ended by the sweeper.
type Expired struct {
	Snapshot Snapshot
	Result   Result
}

// Registry maps user ids to their single active login attempt.
type Registry struct {
	adapters map[backend.Protocol]backend.Adapter
	opts     Options
	locks    *keyedMutex

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewRegistry(adapters []backend.Adapter, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Registry{
		adapters: make(map[backend.Protocol]backend.Adapter, len(adapters)),
		opts:     opts,
		locks:    newKeyedMutex(),
		sessions: make(map[int64]*Session),
	}
	for _, a := range adapters {
		r.adapters[a.Protocol()] = a
	}
	return r
}

// Start begins a fresh attempt for userID, discarding any previous one.
func (r *Registry) Start(userID int64, p backend.Protocol) (Snapshot, bool, error) {
	adapter, ok := r.adapters[p]
	if !ok {
		return Snapshot{}, false, fmt.Errorf("%w: %s", ErrUnknownProtocol, p)
	}

	r.Interrupt(userID)
	unlock := r.locks.Lock(userID)
	defer unlock()

	replaced := false
	if prev := r.take(userID); prev != nil {
		prev.Cancel()
		replaced = true
	}
	s := newSession(userID, adapter, r.opts)
	r.put(userID, s)
	s.log.Info("login started", "replaced", replaced)
	return s.Snapshot(), replaced, nil
}

// Get returns the active attempt of userID.
func (r *Registry) Get(userID int64) (Snapshot, bool) {
	unlock := r.locks.Lock(userID)
	defer unlock()
	s := r.lookup(userID)
	if s == nil {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Handle feeds text into userID's attempt. Attempts reaching a terminal stage
// are removed before Handle returns.
func (r *Registry) Handle(ctx context.Context, userID int64, text string) (Result, error) {
	return r.HandleWithProgress(ctx, userID, text, nil)
}

// HandleWithProgress is Handle with a hook that runs right before each
// backend call.
func (r *Registry) HandleWithProgress(ctx context.Context, userID int64, text string, progress ProgressFunc) (Result, error) {
	unlock := r.locks.Lock(userID)
	defer unlock()

	s := r.lookup(userID)
	if s == nil {
		return Result{}, ErrNoSession
	}
	res, err := s.handle(ctx, text, progress)
	if s.Stage().Terminal() {
		r.remove(userID, s)
	}
	return res, err
}

// Cancel ends userID's attempt. It reports false, and does nothing, when
// there is none.
func (r *Registry) Cancel(userID int64) (Result, bool) {
	r.Interrupt(userID)
	unlock := r.locks.Lock(userID)
	defer unlock()

	s := r.take(userID)
	if s == nil {
		return Result{}, false
	}
	return s.Cancel(), true
}

// Discard disconnects and drops userID's attempt.
func (r *Registry) Discard(userID int64) bool {
	_, ok := r.Cancel(userID)
	return ok
}

// Interrupt signals userID's attempt to stop at the next backend boundary.
// It does not wait for the user lock.
func (r *Registry) Interrupt(userID int64) {
	r.mu.Lock()
	s := r.sessions[userID]
	r.mu.Unlock()
	if s != nil {
		s.Interrupt()
	}
}

// Sweep expires every attempt idle for longer than the configured timeout.
// Users with an event in flight are skipped until the next sweep.
func (r *Registry) Sweep(now time.Time) []Expired {
	if r.opts.Timeout <= 0 {
		return nil
	}
	r.mu.Lock()
	ids := make([]int64, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var expired []Expired
	for _, id := range ids {
		unlock, ok := r.locks.TryLock(id)
		if !ok {
			continue
		}
		s := r.lookup(id)
		if s != nil && s.Expired(now, r.opts.Timeout) {
			r.remove(id, s)
			snap := s.Snapshot()
			expired = append(expired, Expired{Snapshot: snap, Result: s.Expire()})
		}
		unlock()
	}
	return expired
}

// Run sweeps every interval until ctx is done, reporting each expiry.
func (r *Registry) Run(ctx context.Context, interval time.Duration, notify func(Expired)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, e := range r.Sweep(r.opts.Now()) {
				if notify != nil {
					notify(e)
				}
			}
		}
	}
}

// Close cancels every attempt.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Discard(id)
	}
}

// Len returns the number of active attempts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) lookup(userID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[userID]
}

func (r *Registry) put(userID int64, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = s
}

func (r *Registry) take(userID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[userID]
	delete(r.sessions, userID)
	return s
}

// remove deletes the entry only if it still belongs to s.
func (r *Registry) remove(userID int64, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[userID] == s {
		delete(r.sessions, userID)
	}
}
