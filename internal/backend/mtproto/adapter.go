// Package mtproto implements the login backends on top of the gotd MTProto
// client. The Pyrogram and Telethon adapters share the handshake and differ
// only in the string session format they export and accept.
package mtproto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"

	"sessiongen-telebot/internal/backend"
)

// Options configures an Adapter.
type Options struct {
	// Test selects the Telegram test data centers.
	Test bool
	// Dial overrides how clients are started. Defaults to Dial.
	Dial   DialFunc
	Logger *slog.Logger
}

// Adapter is a backend.Adapter for one string session family.
type Adapter struct {
	protocol backend.Protocol
	format   stringFormat
	dcList   dcs.List
	dc       int
	test     bool
	dial     DialFunc
	log      *slog.Logger
}

// NewPyrogram returns the adapter producing Pyrogram string sessions.
func NewPyrogram(opts Options) *Adapter {
	return newAdapter(backend.Pyrogram, pyrogramFormat{}, opts)
}

// NewTelethon returns the adapter producing Telethon string sessions.
func NewTelethon(opts Options) *Adapter {
	return newAdapter(backend.Telethon, telethonFormat{}, opts)
}

func newAdapter(p backend.Protocol, f stringFormat, opts Options) *Adapter {
	a := &Adapter{
		protocol: p,
		format:   f,
		dcList:   dcs.Prod(),
		dc:       2,
		test:     opts.Test,
		dial:     opts.Dial,
		log:      opts.Logger,
	}
	if opts.Test {
		a.dcList = dcs.Test()
	}
	if a.dial == nil {
		a.dial = Dial
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	a.log = a.log.With("protocol", p.String())
	return a
}

func (a *Adapter) Protocol() backend.Protocol { return a.protocol }

func (a *Adapter) Connect(ctx context.Context, apiID int, apiHash string) (backend.Conn, error) {
	if apiID <= 0 || apiHash == "" {
		return nil, backend.Errorf(backend.KindBadCredentials, "connect", "api id and hash are required")
	}
	return a.open(ctx, apiID, apiHash, new(session.StorageMemory))
}

func (a *Adapter) Resume(ctx context.Context, apiID int, apiHash, credential string) (backend.Conn, error) {
	cred, err := a.format.decode(credential, a.dcList)
	if err != nil {
		return nil, backend.Errorf(backend.KindBadCredentials, "resume", "decode: %w", err)
	}
	storage := new(session.StorageMemory)
	loader := session.Loader{Storage: storage}
	if err := loader.Save(ctx, cred.data()); err != nil {
		return nil, classify("resume", err)
	}

	c, err := a.open(ctx, apiID, apiHash, storage)
	if err != nil {
		return nil, err
	}
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		_ = c.Disconnect()
		return nil, classify("resume", err)
	}
	if !status.Authorized {
		_ = c.Disconnect()
		return nil, backend.Errorf(backend.KindBadCredentials, "resume", "session is not authorized")
	}
	c.authorized = true
	c.userID = cred.UserID
	if status.User != nil {
		c.userID = status.User.ID
	}
	return c, nil
}

func (a *Adapter) open(ctx context.Context, apiID int, apiHash string, storage *session.StorageMemory) (*conn, error) {
	client, err := a.dial(ctx, DialConfig{
		AppID:   apiID,
		AppHash: apiHash,
		Storage: storage,
		DCList:  a.dcList,
		DC:      a.dc,
	})
	if err != nil {
		return nil, classify("connect", err)
	}
	a.log.Debug("mtproto connected", "api_id", apiID)
	return &conn{adapter: a, apiID: apiID, storage: storage, client: client}, nil
}

// conn is a single login attempt's connection.
type conn struct {
	adapter *Adapter
	apiID   int
	storage *session.StorageMemory
	client  Client

	mu         sync.Mutex
	authorized bool
	userID     int64
	closed     bool
}

func (c *conn) RequestLoginCode(ctx context.Context, phone string) (backend.CodeToken, error) {
	sent, err := c.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", classify("send code", err)
	}
	switch s := sent.(type) {
	case *tg.AuthSentCode:
		return backend.CodeToken(s.PhoneCodeHash), nil
	default:
		return "", classify("send code", fmt.Errorf("unexpected sent code %T", sent))
	}
}

func (c *conn) SubmitCode(ctx context.Context, phone string, token backend.CodeToken, code string) (backend.LoginOutcome, error) {
	a, err := c.client.Auth().SignIn(ctx, phone, code, string(token))
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return backend.SecondFactorRequired, nil
	}
	if err != nil {
		return 0, classify("sign in", err)
	}
	c.signedIn(a)
	return backend.Authenticated, nil
}

func (c *conn) SubmitSecondFactor(ctx context.Context, secret string) error {
	a, err := c.client.Auth().Password(ctx, secret)
	if err != nil {
		return classify("password", err)
	}
	c.signedIn(a)
	return nil
}

func (c *conn) signedIn(a *tg.AuthAuthorization) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authorized = true
	if a == nil {
		return
	}
	if u, ok := a.User.(*tg.User); ok {
		c.userID = u.ID
	}
}

func (c *conn) ExportCredential(ctx context.Context) (string, error) {
	c.mu.Lock()
	authorized, userID := c.authorized, c.userID
	c.mu.Unlock()
	if !authorized {
		return "", backend.Errorf(backend.KindBadCredentials, "export", "not signed in")
	}

	loader := session.Loader{Storage: c.storage}
	data, err := loader.Load(ctx)
	if err != nil {
		return "", classify("export", err)
	}
	cred, err := credentialFromData(data)
	if err != nil {
		return "", classify("export", err)
	}
	if cred.Addr == "" {
		cred.Addr, _ = dcAddr(c.adapter.dcList, cred.DC)
	}
	cred.APIID = c.apiID
	cred.UserID = userID
	cred.Test = c.adapter.test

	s, err := c.adapter.format.encode(cred)
	if err != nil {
		return "", classify("export", err)
	}
	return s, nil
}

func (c *conn) SendToSelf(ctx context.Context, text string) error {
	if err := c.client.SendToSelf(ctx, text); err != nil {
		return classify("send to self", err)
	}
	return nil
}

func (c *conn) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.client.Close(); err != nil {
		c.adapter.log.Warn("mtproto disconnect", "error", err)
		return err
	}
	c.adapter.log.Debug("mtproto disconnected", "api_id", c.apiID)
	return nil
}
