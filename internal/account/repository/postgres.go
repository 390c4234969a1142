package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"account-mirror/internal/account/domain"
	"account-mirror/internal/db"
)

const accountColumns = `id, email, phone, password_hash, kind, parent_id, active, email_verified,
	approved, approved_by, approved_at, first_name, last_name, birthday, gender, mirror_id,
	created_at, updated_at`

// accountRow mirrors the accounts table.
type accountRow struct {
	ID            string         `db:"id"`
	Email         string         `db:"email"`
	Phone         string         `db:"phone"`
	PasswordHash  string         `db:"password_hash"`
	Kind          string         `db:"kind"`
	ParentID      sql.NullString `db:"parent_id"`
	Active        bool           `db:"active"`
	EmailVerified bool           `db:"email_verified"`
	Approved      bool           `db:"approved"`
	ApprovedBy    sql.NullString `db:"approved_by"`
	ApprovedAt    *time.Time     `db:"approved_at"`
	FirstName     string         `db:"first_name"`
	LastName      string         `db:"last_name"`
	Birthday      *time.Time     `db:"birthday"`
	Gender        string         `db:"gender"`
	MirrorID      string         `db:"mirror_id"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

// PostgresRepository is the sqlx-backed Repository.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns an account repository backed by db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*domain.Account, error) {
	var row accountRow
	err := r.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rowToDomain(&row), nil
}

// GetByID returns the account for id, or nil if not found. An id that is not a UUID matches
// nothing and never reaches the database.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return r.getOne(ctx, "id = $1", id)
}

// GetByEmail returns the account with the given (normalized) email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, "email = $1", email)
}

// GetByPhone returns the account with the given phone, or nil if not found.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	return r.getOne(ctx, "phone = $1", phone)
}

// Create inserts the account. A unique violation is reported as ErrDuplicateEmail or ErrDuplicatePhone.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	const q = `INSERT INTO accounts (` + accountColumns + `)
		VALUES (:id, :email, :phone, :password_hash, :kind, :parent_id, :active, :email_verified,
			:approved, :approved_by, :approved_at, :first_name, :last_name, :birthday, :gender, :mirror_id,
			:created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, domainToRow(a))
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case "accounts_phone_key":
			return ErrDuplicatePhone
		default:
			return ErrDuplicateEmail
		}
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// MarkEmailVerified sets active and email_verified once.
func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET active = TRUE, email_verified = TRUE, updated_at = $2
		 WHERE id = $1 AND email_verified = FALSE`, id, at)
	return affectedOne(res, err)
}

// Approve sets approved, approved_by and approved_at only for a pending MEMBER of approverID,
// so concurrent approvals apply exactly once.
func (r *PostgresRepository) Approve(ctx context.Context, id, approverID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET approved = TRUE, approved_by = $2, approved_at = $3, updated_at = $3
		 WHERE id = $1 AND parent_id = $2 AND kind = 'MEMBER' AND approved = FALSE`, id, approverID, at)
	return affectedOne(res, err)
}

// ListPendingByParent returns unapproved MEMBER accounts under parentID, oldest first.
func (r *PostgresRepository) ListPendingByParent(ctx context.Context, parentID string) ([]*domain.Account, error) {
	var rows []accountRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE parent_id = $1 AND kind = 'MEMBER' AND approved = FALSE
		 ORDER BY created_at`, parentID)
	if err != nil {
		return nil, err
	}
	return rowsToDomain(rows), nil
}

// ListUnmirrored returns verified accounts that have no mirror record yet. Accounts never
// attempted come first, then the least recently attempted, so failing rows rotate to the back.
// Within the same attempt time PRIMARY accounts come first so members can resolve their parent.
func (r *PostgresRepository) ListUnmirrored(ctx context.Context, limit int) ([]*domain.Account, error) {
	var rows []accountRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE mirror_id = '' AND email_verified = TRUE
		 ORDER BY mirror_attempted_at NULLS FIRST, CASE kind WHEN 'PRIMARY' THEN 0 ELSE 1 END, created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return rowsToDomain(rows), nil
}

// SetMirrorID records the external mirror id.
func (r *PostgresRepository) SetMirrorID(ctx context.Context, id, mirrorID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET mirror_id = $2, updated_at = $3 WHERE id = $1`, id, mirrorID, at)
	return err
}

// MarkMirrorAttempt records an unsuccessful mirror attempt so the row moves behind untried ones.
func (r *PostgresRepository) MarkMirrorAttempt(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET mirror_attempted_at = $2 WHERE id = $1 AND mirror_id = ''`, id, at)
	return err
}

// UpdateProfile overwrites the profile fields.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, p domain.Profile, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET first_name = $2, last_name = $3, birthday = $4, gender = $5, updated_at = $6
		 WHERE id = $1`, id, p.FirstName, p.LastName, p.Birthday, string(p.Gender), at)
	return err
}

// UpdatePassword replaces the password hash.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, passwordHash, at)
	return err
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func domainToRow(a *domain.Account) *accountRow {
	return &accountRow{
		ID:            a.ID,
		Email:         a.Email,
		Phone:         a.Phone,
		PasswordHash:  a.PasswordHash,
		Kind:          string(a.Kind),
		ParentID:      nullString(a.ParentID),
		Active:        a.Active,
		EmailVerified: a.EmailVerified,
		Approved:      a.Approved,
		ApprovedBy:    nullString(a.ApprovedBy),
		ApprovedAt:    a.ApprovedAt,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Birthday:      a.Birthday,
		Gender:        string(a.Gender),
		MirrorID:      a.MirrorID,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func rowToDomain(r *accountRow) *domain.Account {
	return &domain.Account{
		ID:            r.ID,
		Email:         r.Email,
		Phone:         r.Phone,
		PasswordHash:  r.PasswordHash,
		Kind:          domain.Kind(r.Kind),
		ParentID:      r.ParentID.String,
		Active:        r.Active,
		EmailVerified: r.EmailVerified,
		Approved:      r.Approved,
		ApprovedBy:    r.ApprovedBy.String,
		ApprovedAt:    r.ApprovedAt,
		Profile: domain.Profile{
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Birthday:  r.Birthday,
			Gender:    domain.Gender(r.Gender),
		},
		MirrorID:  r.MirrorID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func rowsToDomain(rows []accountRow) []*domain.Account {
	out := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		out = append(out, rowToDomain(&rows[i]))
	}
	return out
}
