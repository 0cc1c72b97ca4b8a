// Package backend defines the capability surface every remote login backend
// exposes to the login state machine.
package backend

import (
	"context"
	"fmt"
	"strings"
)

// Protocol selects the client library family a session string is generated for.
type Protocol int

const (
	Pyrogram Protocol = iota + 1
	Telethon
)

func (p Protocol) String() string {
	switch p {
	case Pyrogram:
		return "Pyrogram"
	case Telethon:
		return "Telethon"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// ParseProtocol accepts the family name in any case ("pyrogram", "Telethon").
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pyrogram", "pyro":
		return Pyrogram, true
	case "telethon", "tele":
		return Telethon, true
	}
	return 0, false
}

// CodeToken is the opaque value returned when a login code is dispatched.
// It must be handed back together with the code.
type CodeToken string

// LoginOutcome is the result of a successful code submission.
type LoginOutcome int

const (
	Authenticated LoginOutcome = iota
	SecondFactorRequired
)

func (o LoginOutcome) String() string {
	if o == SecondFactorRequired {
		return "second_factor_required"
	}
	return "authenticated"
}

// Adapter opens connections to one remote protocol family.
type Adapter interface {
	Protocol() Protocol

	// Connect establishes an in-memory client context authenticated by the
	// developer API key only.
	Connect(ctx context.Context, apiID int, apiHash string) (Conn, error)

	// Resume connects with a previously exported credential and fails with
	// KindBadCredentials unless the remote side accepts it as logged in.
	Resume(ctx context.Context, apiID int, apiHash, credential string) (Conn, error)
}

// Conn is one live connection, exclusively owned by a single login attempt.
// Every method may block on network I/O and none of them retries.
type Conn interface {
	RequestLoginCode(ctx context.Context, phone string) (CodeToken, error)
	SubmitCode(ctx context.Context, phone string, token CodeToken, code string) (LoginOutcome, error)
	SubmitSecondFactor(ctx context.Context, secret string) error

	// ExportCredential returns the reusable session string. Only valid once
	// authenticated.
	ExportCredential(ctx context.Context) (string, error)

	// SendToSelf posts text into the account's Saved Messages.
	SendToSelf(ctx context.Context, text string) error

	// Disconnect is idempotent.
	Disconnect() error
}
