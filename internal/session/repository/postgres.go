package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"account-mirror/internal/session/domain"
)

const sessionColumns = `id, account_id, refresh_jti, refresh_token_hash, started_at, expires_at,
	revoked_at, last_seen_at, ip_address`

type sessionRow struct {
	ID               string     `db:"id"`
	AccountID        string     `db:"account_id"`
	RefreshJti       string     `db:"refresh_jti"`
	RefreshTokenHash string     `db:"refresh_token_hash"`
	StartedAt        time.Time  `db:"started_at"`
	ExpiresAt        time.Time  `db:"expires_at"`
	RevokedAt        *time.Time `db:"revoked_at"`
	LastSeenAt       *time.Time `db:"last_seen_at"`
	IPAddress        string     `db:"ip_address"`
}

// PostgresRepository is the sqlx-backed Repository.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a session repository backed by db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var row sessionRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Session{
		ID:               row.ID,
		AccountID:        row.AccountID,
		StartedAt:        row.StartedAt,
		ExpiresAt:        row.ExpiresAt,
		RevokedAt:        row.RevokedAt,
		LastSeenAt:       row.LastSeenAt,
		IPAddress:        row.IPAddress,
		RefreshJti:       row.RefreshJti,
		RefreshTokenHash: row.RefreshTokenHash,
	}, nil
}

// Create inserts the session.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES (:id, :account_id, :refresh_jti, :refresh_token_hash, :started_at, :expires_at,
		 	:revoked_at, :last_seen_at, :ip_address)`,
		&sessionRow{
			ID:               s.ID,
			AccountID:        s.AccountID,
			RefreshJti:       s.RefreshJti,
			RefreshTokenHash: s.RefreshTokenHash,
			StartedAt:        s.StartedAt,
			ExpiresAt:        s.ExpiresAt,
			RevokedAt:        s.RevokedAt,
			LastSeenAt:       s.LastSeenAt,
			IPAddress:        s.IPAddress,
		})
	return err
}

// Revoke marks the session revoked; already revoked sessions keep their original timestamp.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	return err
}

// RevokeAllByAccount revokes every live session of the account.
func (r *PostgresRepository) RevokeAllByAccount(ctx context.Context, accountID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE account_id = $1 AND revoked_at IS NULL`, accountID, at)
	return err
}

// RotateRefresh is a compare-and-swap on refresh_jti.
func (r *PostgresRepository) RotateRefresh(ctx context.Context, id, oldJti, newJti, newHash string, seenAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET refresh_jti = $3, refresh_token_hash = $4, last_seen_at = $5
		 WHERE id = $1 AND refresh_jti = $2 AND revoked_at IS NULL`, id, oldJti, newJti, newHash, seenAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
