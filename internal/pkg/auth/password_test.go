package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewPasswordPolicy(t *testing.T) {
	t.Run("should default to plaintext", func(t *testing.T) {
		policy, err := NewPasswordPolicy("")
		require.NoError(t, err)
		require.Equal(t, PolicyPlaintext, policy.Name())
	})

	t.Run("should reject unknown names", func(t *testing.T) {
		_, err := NewPasswordPolicy("md5")
		require.Error(t, err)
	})
}

func TestPlaintext(t *testing.T) {
	req := require.New(t)
	policy := Plaintext{}

	stored, err := policy.Hash("Secret")
	req.NoError(err)
	req.Equal("Secret", stored)

	req.True(policy.Compare(stored, "Secret"))
	req.False(policy.Compare(stored, "secret"))
	req.False(policy.Compare(stored, ""))
}

func TestBcrypt(t *testing.T) {
	req := require.New(t)
	policy := Bcrypt{Cost: bcrypt.MinCost}

	stored, err := policy.Hash("Secret")
	req.NoError(err)
	req.NotEqual("Secret", stored)

	req.True(policy.Compare(stored, "Secret"))
	req.False(policy.Compare(stored, "secret"))
	req.False(policy.Compare("Secret", "Secret"))
}
