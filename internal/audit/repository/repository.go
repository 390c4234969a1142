package repository

import (
	"context"

	"account-mirror/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.AuditLog, error)
}
