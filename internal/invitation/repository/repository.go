package repository

import (
	"context"
	"time"

	"account-mirror/internal/invitation/domain"
)

// Repository defines persistence for invitations. Getters return (nil, nil) when no row matches.
type Repository interface {
	Create(ctx context.Context, inv *domain.Invitation) error
	// FindUsable returns an unused, unexpired invitation for email issued by issuerID.
	FindUsable(ctx context.Context, email, issuerID string, now time.Time) (*domain.Invitation, error)
	// Consume marks the invitation for token used if it is unused, unexpired and addressed to email.
	// It returns the consumed invitation, or nil when nothing matched; at most one caller wins.
	Consume(ctx context.Context, token, email string, now time.Time) (*domain.Invitation, error)
}
