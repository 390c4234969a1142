// Package domain defines invitations issued by PRIMARY accounts to prospective members.
package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Lifetime is how long an invitation stays usable after creation.
const Lifetime = 7 * 24 * time.Hour

// Invitation lets the holder of Token register as a MEMBER under IssuerID.
type Invitation struct {
	ID        string
	Email     string
	IssuerID  string
	Token     string
	Used      bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Usable reports whether the invitation can still be consumed at now.
func (i *Invitation) Usable(now time.Time) bool {
	return !i.Used && now.Before(i.ExpiresAt)
}

// NewToken returns 32 random bytes, base64url-encoded without padding.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
