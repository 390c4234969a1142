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

	"account-mirror/internal/audit/domain"
)

func TestCreateAndList(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	repo := NewPostgresRepository(sqlx.NewDb(mockDB, "pgx"))
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), &domain.AuditLog{
		ID: "e1", Action: "login_failure", Resource: "auth", IP: "10.0.0.1", CreatedAt: now,
	}))

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs")).
		WithArgs("a1", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "action", "resource", "ip", "metadata", "created_at"}).
			AddRow("e2", "a1", "approve", "account", "10.0.0.2", "", now))
	got, err := repo.ListByAccount(context.Background(), "a1", 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "approve", got[0].Action)
	assert.Equal(t, "a1", got[0].AccountID)
	require.NoError(t, mock.ExpectationsWereMet())
}
