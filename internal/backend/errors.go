package backend

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the abstract failure taxonomy of a login attempt.
type Kind int

const (
	KindTransient Kind = iota
	KindBadCredentials
	KindBadPhoneNumber
	KindBadOrExpiredCode
	KindBadSecondFactor
	KindTimeout
	KindCancelled
)

var kindNames = map[Kind]string{
	KindTransient:        "transient",
	KindBadCredentials:   "bad credentials",
	KindBadPhoneNumber:   "bad phone number",
	KindBadOrExpiredCode: "bad or expired code",
	KindBadSecondFactor:  "bad second factor",
	KindTimeout:          "timeout",
	KindCancelled:        "cancelled",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error lets a bare Kind be used as a match target: errors.Is(err, KindBadPhoneNumber).
func (k Kind) Error() string { return k.String() }

// Retryable reports whether the user may resend input at the same stage.
func (k Kind) Retryable() bool { return k == KindTransient }

// Error is a classified backend failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind from an error chain. Unclassified errors
// count as transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindTransient
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindTransient
}
