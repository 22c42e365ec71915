/*
Package randx provides functions for generating cryptographically secure random numbers and unique identifiers.

It is primarily used to generate fixed-length numeric one-time codes and standard UUID session and message IDs.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// OTPLength is the fixed number of decimal digits in a one-time code.
	OTPLength = 6

	// otpSpace is the number of distinct codes (10^OTPLength).
	otpSpace = 1_000_000
)

// OTPCode generates a uniformly distributed, zero-padded decimal code of OTPLength digits
// using a cryptographically secure random number generator (crypto/rand).
func OTPCode() (string, error) {
	num, err := rand.Int(rand.Reader, big.NewInt(otpSpace))
	if err != nil {
		return "", fmt.Errorf("failed to generate random number for one-time code: %w", err)
	}

	return fmt.Sprintf("%0*d", OTPLength, num.Int64()), nil
}

// IsValidOTP checks that code has exactly OTPLength ASCII digits.
func IsValidOTP(code string) bool {
	if len(code) != OTPLength {
		return false
	}

	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}

	return true
}

// SessionID generates a standard UUID v4 string identifying one connection.
func SessionID() string {
	return uuid.New().String()
}

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a message.
func MessageID() string {
	return uuid.New().String()
}
