package mtproto

import (
	"context"
	"errors"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"sessiongen-telebot/internal/backend"
)

// RPC error types that end a login attempt. Anything else, FLOOD_WAIT
// included, is transient.
var rpcKinds = map[string]backend.Kind{
	"API_ID_INVALID":          backend.KindBadCredentials,
	"API_ID_PUBLISHED_FLOOD":  backend.KindBadCredentials,
	"AUTH_KEY_UNREGISTERED":   backend.KindBadCredentials,
	"AUTH_KEY_INVALID":        backend.KindBadCredentials,
	"SESSION_REVOKED":         backend.KindBadCredentials,
	"PHONE_NUMBER_INVALID":    backend.KindBadPhoneNumber,
	"PHONE_NUMBER_BANNED":     backend.KindBadPhoneNumber,
	"PHONE_NUMBER_UNOCCUPIED": backend.KindBadPhoneNumber,
	"PHONE_NUMBER_FLOOD":      backend.KindBadPhoneNumber,
	"PHONE_CODE_INVALID":      backend.KindBadOrExpiredCode,
	"PHONE_CODE_EXPIRED":      backend.KindBadOrExpiredCode,
	"PHONE_CODE_EMPTY":        backend.KindBadOrExpiredCode,
	"PASSWORD_HASH_INVALID":   backend.KindBadSecondFactor,
}

// classify wraps err into a *backend.Error carrying its failure kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *backend.Error
	if errors.As(err, &be) {
		return err
	}

	kind := backend.KindTransient
	var signUp *auth.SignUpRequired
	switch {
	case errors.Is(err, auth.ErrPasswordInvalid):
		kind = backend.KindBadSecondFactor
	case errors.As(err, &signUp):
		kind = backend.KindBadPhoneNumber
	case errors.Is(err, context.Canceled):
		kind = backend.KindCancelled
	default:
		if rpcErr, ok := tgerr.As(err); ok {
			if k, known := rpcKinds[rpcErr.Type]; known {
				kind = k
			}
		}
	}
	return &backend.Error{Kind: kind, Op: op, Err: err}
}
