package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"linechat/internal/pkg/errs"
)

func TestOTPChallenge_Verify(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 10 * time.Minute

	t.Run("should count malformed codes as wrong attempts", func(t *testing.T) {
		req := require.New(t)
		c := otpChallenge{code: "012345", issuedAt: issued}

		for _, candidate := range []string{"12345", "0123456", "01234a", ""} {
			verr, done := c.verify(candidate, issued, ttl, 10)
			req.False(done)
			req.Equal(errs.ErrInvalidOTP, verr.Code, "candidate %q", candidate)
		}
		req.Equal(4, c.attempts)

		verr, done := c.verify("012345", issued, ttl, 10)
		req.Nil(verr)
		req.True(done)
	})

	t.Run("should discard the challenge once attempts run out", func(t *testing.T) {
		c := otpChallenge{code: "012345", issuedAt: issued}

		_, done := c.verify("999999", issued, ttl, 2)
		require.False(t, done)

		verr, done := c.verify("999999", issued, ttl, 2)
		require.True(t, done)
		require.Equal(t, errs.ErrOTPAttemptsExceeded, verr.Code)
	})

	t.Run("should expire before comparing", func(t *testing.T) {
		c := otpChallenge{code: "012345", issuedAt: issued}

		verr, done := c.verify("012345", issued.Add(ttl+time.Second), ttl, 5)
		require.True(t, done)
		require.Equal(t, errs.ErrOTPExpired, verr.Code)
	})
}

func TestIsValidName(t *testing.T) {
	for name, want := range map[string]bool{
		"Alice":  true,
		"Zed1":   true,
		"ALL":    false,
		"system": false,
		"Me":     false,
		"a:b":    false,
		"a b":    false,
		"":       false,
	} {
		require.Equal(t, want, isValidName(name), "name %q", name)
	}
}
