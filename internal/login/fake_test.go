package login

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"sessiongen-telebot/internal/backend"
)

// fakeBackend is a scriptable backend.Adapter that counts connections.
type fakeBackend struct {
	protocol backend.Protocol

	mu          sync.Mutex
	connectErr  error
	requestErr  error
	outcome     backend.LoginOutcome
	codeErr     error
	secondErr   error
	exportErr   error
	block       chan struct{} // SubmitCode waits on it when set
	entered     chan struct{} // signalled when SubmitCode starts
	conns       []*fakeConn
	codes       []string
	selfMessage []string
}

func newFakeBackend(p backend.Protocol) *fakeBackend {
	return &fakeBackend{protocol: p}
}

func (b *fakeBackend) Protocol() backend.Protocol { return b.protocol }

func (b *fakeBackend) Connect(_ context.Context, apiID int, apiHash string) (backend.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connectErr != nil {
		return nil, b.connectErr
	}
	c := &fakeConn{b: b, apiID: apiID, apiHash: apiHash}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *fakeBackend) Resume(context.Context, int, string, string) (backend.Conn, error) {
	return nil, &backend.Error{Kind: backend.KindBadCredentials, Op: "resume"}
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

// live counts connections that were opened and not yet closed.
func (b *fakeBackend) live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.conns {
		if c.disconnects == 0 {
			n++
		}
	}
	return n
}

// disconnects sums Disconnect calls over every connection.
func (b *fakeBackend) disconnects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.conns {
		n += c.disconnects
	}
	return n
}

type fakeConn struct {
	b           *fakeBackend
	apiID       int
	apiHash     string
	phone       string
	disconnects int
}

func (c *fakeConn) RequestLoginCode(_ context.Context, phone string) (backend.CodeToken, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.b.requestErr != nil {
		return "", c.b.requestErr
	}
	c.phone = phone
	return backend.CodeToken("token-" + phone), nil
}

func (c *fakeConn) SubmitCode(ctx context.Context, phone string, token backend.CodeToken, code string) (backend.LoginOutcome, error) {
	c.b.mu.Lock()
	block, entered := c.b.block, c.b.entered
	c.b.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if token != backend.CodeToken("token-"+phone) {
		return 0, &backend.Error{Kind: backend.KindBadOrExpiredCode, Op: "sign in"}
	}
	c.b.codes = append(c.b.codes, code)
	return c.b.outcome, c.b.codeErr
}

func (c *fakeConn) SubmitSecondFactor(context.Context, string) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.b.secondErr
}

func (c *fakeConn) ExportCredential(context.Context) (string, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.b.exportErr != nil {
		return "", c.b.exportErr
	}
	return fmt.Sprintf("%s:%d:%s", c.b.protocol, c.apiID, c.phone), nil
}

func (c *fakeConn) SendToSelf(_ context.Context, text string) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.selfMessage = append(c.b.selfMessage, text)
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.disconnects++
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(clock *fakeClock, backends ...backend.Adapter) *Registry {
	return NewRegistry(backends, Options{
		Timeout:     5 * time.Minute,
		CallTimeout: time.Second,
		Logger:      quietLogger(),
		Now:         clock.Now,
	})
}
