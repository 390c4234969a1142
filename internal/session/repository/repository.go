package repository

import (
	"context"
	"time"

	"account-mirror/internal/session/domain"
)

// Repository defines persistence for sessions. GetByID returns (nil, nil) when missing.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllByAccount(ctx context.Context, accountID string, at time.Time) error
	// RotateRefresh swaps the refresh binding only if the session still holds oldJti and is not revoked.
	RotateRefresh(ctx context.Context, id, oldJti, newJti, newHash string, seenAt time.Time) (bool, error)
}
