/*
Package auth provides the password policy used to store and check account credentials.

Two policies are available. "plaintext" stores the password as given and compares it exactly,
which keeps existing account tables usable without migration. "bcrypt" stores bcrypt hashes.
*/
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// PolicyPlaintext compares stored and supplied passwords byte for byte.
	PolicyPlaintext = "plaintext"

	// PolicyBcrypt stores bcrypt hashes at bcrypt.DefaultCost.
	PolicyBcrypt = "bcrypt"
)

// PasswordPolicy converts plain passwords into their stored form and checks candidates against it.
type PasswordPolicy interface {
	// Name returns the configuration name of the policy.
	Name() string

	// Hash returns the stored form of plain.
	Hash(plain string) (string, error)

	// Compare reports whether plain matches the stored form.
	Compare(stored, plain string) bool
}

// NewPasswordPolicy returns the policy registered under name.
func NewPasswordPolicy(name string) (PasswordPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyPlaintext:
		return Plaintext{}, nil
	case PolicyBcrypt:
		return Bcrypt{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("unknown password policy %q", name)
	}
}

// Plaintext keeps passwords unmodified.
type Plaintext struct{}

func (Plaintext) Name() string { return PolicyPlaintext }

func (Plaintext) Hash(plain string) (string, error) { return plain, nil }

func (Plaintext) Compare(stored, plain string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(plain)) == 1
}

// Bcrypt hashes passwords with golang.org/x/crypto/bcrypt.
type Bcrypt struct {
	Cost int
}

func (Bcrypt) Name() string { return PolicyBcrypt }

func (b Bcrypt) Hash(plain string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func (Bcrypt) Compare(stored, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
}
