// Package otp issues and verifies short-lived one-time codes keyed by identifier (email or phone).
//
// Codes are single use: a correct Verify deletes the entry atomically, so two concurrent
// verifications with the right code cannot both succeed. A wrong code leaves the entry in
// place; there is no attempt counter, the entry simply expires after TTL.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"
)

// Purpose is what an issued code may be used for.
type Purpose string

const (
	PurposeRegistration  Purpose = "REGISTRATION"
	PurposeLogin         Purpose = "LOGIN"
	PurposeResetPassword Purpose = "RESET_PASSWORD"
)

const (
	// CodeLength is the number of digits in an issued code.
	CodeLength = 4
	// TTL is how long an issued code stays valid.
	TTL = 5 * time.Minute
	// VerifiedTTL is how long a verified flag stays set after a successful REGISTRATION verify.
	VerifiedTTL = 10 * time.Minute
)

// ErrStoreUnavailable wraps backend failures; a missing or wrong code is never an error.
var ErrStoreUnavailable = errors.New("otp store unavailable")

// Store holds codes and verified flags.
type Store interface {
	// Issue generates a code for identifier, replacing any previous one.
	Issue(ctx context.Context, identifier string, purpose Purpose) (string, error)
	// Verify consumes the entry when code matches and returns its purpose. ok is false on mismatch or absence.
	Verify(ctx context.Context, identifier, code string) (purpose Purpose, ok bool, err error)
	MarkVerified(ctx context.Context, identifier string) error
	IsVerified(ctx context.Context, identifier string) (bool, error)
	ClearVerified(ctx context.Context, identifier string) error
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegistration, PurposeLogin, PurposeResetPassword:
		return true
	}
	return false
}

// GenerateCode returns a uniformly random numeric code of n digits.
func GenerateCode(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	ten := big.NewInt(10)
	for range n {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}

// NormalizeIdentifier lowercases emails and trims whitespace so keys are stable across requests.
func NormalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return strings.ToLower(identifier)
	}
	return identifier
}
