package repository

import (
	"context"
	"errors"
	"time"

	"account-mirror/internal/account/domain"
)

// Storage-level uniqueness violations reported by Create.
var (
	ErrDuplicateEmail = errors.New("account email already exists")
	ErrDuplicatePhone = errors.New("account phone already exists")
)

// Repository defines persistence for accounts. Getters return (nil, nil) when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Account, error)
	// Create inserts a; uniqueness of email and phone is enforced by the database.
	Create(ctx context.Context, a *domain.Account) error
	// MarkEmailVerified activates the account unless it is already verified. Reports whether a row changed.
	MarkEmailVerified(ctx context.Context, id string, at time.Time) (bool, error)
	// Approve approves a pending MEMBER whose parent is approverID. Reports whether a row changed.
	Approve(ctx context.Context, id, approverID string, at time.Time) (bool, error)
	ListPendingByParent(ctx context.Context, parentID string) ([]*domain.Account, error)
	ListUnmirrored(ctx context.Context, limit int) ([]*domain.Account, error)
	SetMirrorID(ctx context.Context, id, mirrorID string, at time.Time) error
	// MarkMirrorAttempt stamps a failed or skipped mirror attempt; ListUnmirrored orders by it.
	MarkMirrorAttempt(ctx context.Context, id string, at time.Time) error
	UpdateProfile(ctx context.Context, id string, p domain.Profile, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
}
