package domain

import "time"

// Session is a login session. StartedAt never moves; refreshes only rotate the refresh token.
type Session struct {
	ID               string
	AccountID        string
	StartedAt        time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time // nil when not revoked
	LastSeenAt       *time.Time
	IPAddress        string
	RefreshJti       string // current refresh token jti
	RefreshTokenHash string // SHA-256 of the current refresh token
}

// Revoked reports whether the session has been revoked.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// PastAbsoluteLifetime reports whether now is at or beyond StartedAt+limit. A non-positive limit disables the cap.
func (s *Session) PastAbsoluteLifetime(now time.Time, limit time.Duration) bool {
	if limit <= 0 {
		return false
	}
	return !now.Before(s.StartedAt.Add(limit))
}
