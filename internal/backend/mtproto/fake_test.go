package mtproto

import (
	"context"
	"errors"
	"sync"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

const (
	fakeAddr   = "149.154.167.51:443"
	fakeUserID = int64(777000111)
)

// fakeServer stands in for Telegram: it performs a pretend key exchange on
// dial and remembers which auth keys have signed in.
type fakeServer struct {
	mu         sync.Mutex
	code       string
	password   string
	keys       int
	authorized map[[8]byte]int64
	dials      int
	closes     int
}

func newFakeServer() *fakeServer {
	return &fakeServer{code: "12345", authorized: make(map[[8]byte]int64)}
}

func (s *fakeServer) dial(ctx context.Context, cfg DialConfig) (Client, error) {
	loader := session.Loader{Storage: cfg.Storage}
	data, err := loader.Load(ctx)
	if errors.Is(err, session.ErrNotFound) {
		s.mu.Lock()
		s.keys++
		var key crypto.Key
		for i := range key {
			key[i] = byte(s.keys + i)
		}
		s.mu.Unlock()
		id := key.ID()
		data = &session.Data{DC: 2, Addr: fakeAddr, AuthKey: key[:], AuthKeyID: id[:]}
		if err := loader.Save(ctx, data); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	var id [8]byte
	copy(id[:], data.AuthKeyID)

	s.mu.Lock()
	s.dials++
	s.mu.Unlock()
	return &fakeClient{server: s, keyID: id}, nil
}

func (s *fakeServer) counts() (dials, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials, s.closes
}

type fakeClient struct {
	server *fakeServer
	keyID  [8]byte
	sent   []string
}

func (c *fakeClient) Auth() Authenticator { return fakeAuth{c} }

func (c *fakeClient) SendToSelf(_ context.Context, text string) error {
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeClient) Close() error {
	c.server.mu.Lock()
	c.server.closes++
	c.server.mu.Unlock()
	return nil
}

type fakeAuth struct{ c *fakeClient }

func (a fakeAuth) SendCode(_ context.Context, phone string, _ auth.SendCodeOptions) (tg.AuthSentCodeClass, error) {
	if phone == "+0" {
		return nil, tgerr.New(400, "PHONE_NUMBER_INVALID")
	}
	return &tg.AuthSentCode{PhoneCodeHash: "hash-" + phone}, nil
}

func (a fakeAuth) SignIn(_ context.Context, phone, code, codeHash string) (*tg.AuthAuthorization, error) {
	s := a.c.server
	if codeHash != "hash-"+phone {
		return nil, tgerr.New(400, "PHONE_CODE_EXPIRED")
	}
	if code != s.code {
		return nil, tgerr.New(400, "PHONE_CODE_INVALID")
	}
	if s.password != "" {
		return nil, auth.ErrPasswordAuthNeeded
	}
	return a.authorize(), nil
}

func (a fakeAuth) Password(_ context.Context, password string) (*tg.AuthAuthorization, error) {
	if password != a.c.server.password {
		return nil, auth.ErrPasswordInvalid
	}
	return a.authorize(), nil
}

func (a fakeAuth) Status(context.Context) (*auth.Status, error) {
	s := a.c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.authorized[a.c.keyID]
	if !ok {
		return &auth.Status{}, nil
	}
	return &auth.Status{Authorized: true, User: &tg.User{ID: uid}}, nil
}

func (a fakeAuth) authorize() *tg.AuthAuthorization {
	s := a.c.server
	s.mu.Lock()
	s.authorized[a.c.keyID] = fakeUserID
	s.mu.Unlock()
	return &tg.AuthAuthorization{User: &tg.User{ID: fakeUserID}}
}
