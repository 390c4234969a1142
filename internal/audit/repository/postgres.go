package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"account-mirror/internal/audit/domain"
)

type auditRow struct {
	ID        string         `db:"id"`
	AccountID sql.NullString `db:"account_id"`
	Action    string         `db:"action"`
	Resource  string         `db:"resource"`
	IP        string         `db:"ip"`
	Metadata  string         `db:"metadata"`
	CreatedAt time.Time      `db:"created_at"`
}

// PostgresRepository is the sqlx-backed Repository.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns an audit log repository backed by db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the audit log entry.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO audit_logs (id, account_id, action, resource, ip, metadata, created_at)
		 VALUES (:id, :account_id, :action, :resource, :ip, :metadata, :created_at)`,
		&auditRow{
			ID:        a.ID,
			AccountID: sql.NullString{String: a.AccountID, Valid: a.AccountID != ""},
			Action:    a.Action,
			Resource:  a.Resource,
			IP:        a.IP,
			Metadata:  a.Metadata,
			CreatedAt: a.CreatedAt,
		})
	return err
}

// ListByAccount returns the account's events, newest first.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.AuditLog, error) {
	var rows []auditRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, account_id, action, resource, ip, metadata, created_at FROM audit_logs
		 WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		out = append(out, &domain.AuditLog{
			ID:        row.ID,
			AccountID: row.AccountID.String,
			Action:    row.Action,
			Resource:  row.Resource,
			IP:        row.IP,
			Metadata:  row.Metadata,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}
