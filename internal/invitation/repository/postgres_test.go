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

	"account-mirror/internal/invitation/domain"
)

var invitationColumnNames = []string{"id", "email", "issuer_id", "token", "used", "created_at", "expires_at"}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewPostgresRepository(sqlx.NewDb(mockDB, "pgx")), mock
}

func TestConsume_Wins(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE invitations SET used = TRUE")).
		WithArgs("tok", "m@x.com", now).
		WillReturnRows(sqlmock.NewRows(invitationColumnNames).
			AddRow("i1", "m@x.com", "p1", "tok", true, now, now.Add(domain.Lifetime)))

	inv, err := repo.Consume(context.Background(), "tok", "m@x.com", now)
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, "p1", inv.IssuerID)
	assert.True(t, inv.Used)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsume_AlreadyUsed(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE invitations SET used = TRUE")).
		WithArgs("tok", "m@x.com", now).
		WillReturnRows(sqlmock.NewRows(invitationColumnNames))

	inv, err := repo.Consume(context.Background(), "tok", "m@x.com", now)
	require.NoError(t, err)
	assert.Nil(t, inv)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUsable(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE email = $1 AND issuer_id = $2 AND used = FALSE AND expires_at > $3")).
		WithArgs("m@x.com", "p1", now).
		WillReturnRows(sqlmock.NewRows(invitationColumnNames))

	inv, err := repo.FindUsable(context.Background(), "m@x.com", "p1", now)
	require.NoError(t, err)
	assert.Nil(t, inv)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO invitations")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now().UTC()
	err := repo.Create(context.Background(), &domain.Invitation{
		ID: "i1", Email: "m@x.com", IssuerID: "p1", Token: "tok", CreatedAt: now, ExpiresAt: now.Add(domain.Lifetime),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
