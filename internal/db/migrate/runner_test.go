package migrate

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"account-mirror/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		_, _, err := Run(dsn, Up)
		if err == nil {
			t.Fatalf("Run with DSN %q should return error", dsn)
		}
		if !strings.HasPrefix(err.Error(), "DATABASE_URL is not set") {
			t.Errorf("error = %q, want DATABASE_URL message", err.Error())
		}
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "sideways", "UP", "Down"} {
		t.Run(direction, func(t *testing.T) {
			_, _, err := Run("postgres://localhost/test", direction)
			if err == nil {
				t.Fatalf("Run with direction %q should return error", direction)
			}
			if !strings.Contains(err.Error(), "direction must be") {
				t.Errorf("error = %q, want direction message", err.Error())
			}
		})
	}
}

func TestRun_InvalidDSN(t *testing.T) {
	_, _, err := Run("invalid-dsn", Up)
	if err == nil {
		t.Fatal("Run with invalid DSN should return error")
	}
	if errors.Is(err, ErrNoChange) {
		t.Error("connection failure must not be reported as ErrNoChange")
	}
}

func TestMigrationFS_PairsUpAndDown(t *testing.T) {
	entries, err := fs.Glob(db.MigrationFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migrations")
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e, ".up.sql"):
			ups++
		case strings.HasSuffix(e, ".down.sql"):
			downs++
		default:
			t.Errorf("unexpected migration file %s", e)
		}
	}
	if ups != downs {
		t.Errorf("up migrations = %d, down migrations = %d", ups, downs)
	}
}
