package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewPostgresRepository(sqlx.NewDb(mockDB, "pgx")), mock
}

func TestGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Now().UTC().Add(-time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "account_id", "refresh_jti", "refresh_token_hash", "started_at", "expires_at",
			"revoked_at", "last_seen_at", "ip_address",
		}).AddRow("s1", "a1", "j1", "h1", start, start.Add(time.Hour), nil, nil, "10.0.0.1"))

	s, err := repo.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "a1", s.AccountID)
	assert.Equal(t, start, s.StartedAt)
	assert.False(t, s.Revoked())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateRefresh_CompareAndSwap(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	q := regexp.QuoteMeta("WHERE id = $1 AND refresh_jti = $2 AND revoked_at IS NULL")
	mock.ExpectExec(q).WithArgs("s1", "old", "new", "hash", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("s1", "old", "newer", "hash2", now).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.RotateRefresh(context.Background(), "s1", "old", "new", "hash", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RotateRefresh(context.Background(), "s1", "old", "newer", "hash2", now)
	require.NoError(t, err)
	assert.False(t, ok, "stale jti must not rotate")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllByAccount(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET revoked_at = $2 WHERE account_id = $1")).
		WithArgs("a1", now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.RevokeAllByAccount(context.Background(), "a1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}
