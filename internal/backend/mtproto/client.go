package mtproto

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
)

// Authenticator is the subset of *auth.Client the login flow needs.
type Authenticator interface {
	SendCode(ctx context.Context, phone string, options auth.SendCodeOptions) (tg.AuthSentCodeClass, error)
	SignIn(ctx context.Context, phone, code, codeHash string) (*tg.AuthAuthorization, error)
	Password(ctx context.Context, password string) (*tg.AuthAuthorization, error)
	Status(ctx context.Context) (*auth.Status, error)
}

// Client is a running MTProto client.
type Client interface {
	Auth() Authenticator
	SendToSelf(ctx context.Context, text string) error
	Close() error
}

// DialConfig describes one client to start.
type DialConfig struct {
	AppID   int
	AppHash string
	Storage session.Storage
	DCList  dcs.List
	DC      int
}

// DialFunc starts a client and returns once it is connected.
type DialFunc func(ctx context.Context, cfg DialConfig) (Client, error)

type gotdClient struct {
	client *telegram.Client
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	once   sync.Once
}

// Dial starts a gotd client in the background. The client stays connected
// until Close.
func Dial(ctx context.Context, cfg DialConfig) (Client, error) {
	client := telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: cfg.Storage,
		DCList:         cfg.DCList,
		DC:             cfg.DC,
		NoUpdates:      true,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	c := &gotdClient{client: client, cancel: cancel, done: make(chan struct{})}
	ready := make(chan struct{})

	go func() {
		defer close(c.done)
		c.err = client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		return c, nil
	case <-c.done:
		cancel()
		if c.err == nil {
			c.err = errors.New("client stopped before ready")
		}
		return nil, fmt.Errorf("connect: %w", c.err)
	case <-ctx.Done():
		cancel()
		<-c.done
		return nil, ctx.Err()
	}
}

func (c *gotdClient) Auth() Authenticator {
	return c.client.Auth()
}

func (c *gotdClient) SendToSelf(ctx context.Context, text string) error {
	_, err := message.NewSender(c.client.API()).Self().Text(ctx, text)
	return err
}

func (c *gotdClient) Close() error {
	c.once.Do(func() {
		c.cancel()
		<-c.done
	})
	if c.err != nil && !errors.Is(c.err, context.Canceled) {
		return c.err
	}
	return nil
}
