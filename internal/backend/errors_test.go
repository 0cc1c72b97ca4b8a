package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", &Error{Kind: KindBadOrExpiredCode, Op: "sign in"})

	assert.Equal(t, KindBadOrExpiredCode, KindOf(wrapped))
	assert.Equal(t, KindBadPhoneNumber, KindOf(KindBadPhoneNumber))
	assert.Equal(t, KindTransient, KindOf(errors.New("boom")))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindTransient, KindOf(context.DeadlineExceeded))
}

func TestError_Is(t *testing.T) {
	cause := errors.New("PHONE_CODE_EXPIRED")
	err := &Error{Kind: KindBadOrExpiredCode, Op: "sign in", Err: cause}

	assert.ErrorIs(t, err, KindBadOrExpiredCode)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, KindBadSecondFactor)
	assert.Equal(t, "sign in: bad or expired code: PHONE_CODE_EXPIRED", err.Error())

	formatted := Errorf(KindTransient, "send code", "status %d", 500)
	assert.Equal(t, "send code: transient: status 500", formatted.Error())
	assert.ErrorIs(t, formatted, KindTransient)
}

func TestKind_Retryable(t *testing.T) {
	assert.True(t, KindTransient.Retryable())
	for _, k := range []Kind{KindBadCredentials, KindBadPhoneNumber, KindBadOrExpiredCode, KindBadSecondFactor, KindTimeout, KindCancelled} {
		assert.False(t, k.Retryable(), k.String())
	}
}

func TestParseProtocol(t *testing.T) {
	p, ok := ParseProtocol(" Pyrogram ")
	assert.True(t, ok)
	assert.Equal(t, Pyrogram, p)

	p, ok = ParseProtocol("tele")
	assert.True(t, ok)
	assert.Equal(t, Telethon, p)

	_, ok = ParseProtocol("tdlib")
	assert.False(t, ok)
	assert.Equal(t, "Protocol(9)", Protocol(9).String())
}
