package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"account-mirror/internal/invitation/domain"
)

const invitationColumns = `id, email, issuer_id, token, used, created_at, expires_at`

type invitationRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	IssuerID  string    `db:"issuer_id"`
	Token     string    `db:"token"`
	Used      bool      `db:"used"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// PostgresRepository is the sqlx-backed Repository.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns an invitation repository backed by db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the invitation.
func (r *PostgresRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO invitations (`+invitationColumns+`)
		 VALUES (:id, :email, :issuer_id, :token, :used, :created_at, :expires_at)`,
		invitationRow(*inv))
	return err
}

// FindUsable returns the newest usable invitation for email from issuerID.
func (r *PostgresRepository) FindUsable(ctx context.Context, email, issuerID string, now time.Time) (*domain.Invitation, error) {
	var row invitationRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+invitationColumns+` FROM invitations
		 WHERE email = $1 AND issuer_id = $2 AND used = FALSE AND expires_at > $3
		 ORDER BY created_at DESC LIMIT 1`, email, issuerID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	inv := domain.Invitation(row)
	return &inv, nil
}

// Consume flips used in a single conditional UPDATE so concurrent registrations cannot share a token.
func (r *PostgresRepository) Consume(ctx context.Context, token, email string, now time.Time) (*domain.Invitation, error) {
	var row invitationRow
	err := r.db.GetContext(ctx, &row,
		`UPDATE invitations SET used = TRUE
		 WHERE token = $1 AND email = $2 AND used = FALSE AND expires_at > $3
		 RETURNING `+invitationColumns, token, email, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	inv := domain.Invitation(row)
	return &inv, nil
}
