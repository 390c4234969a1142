// Package migrate applies the embedded account schema using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"account-mirror/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Directions accepted by Run.
const (
	Up      = "up"
	Down    = "down"
	Version = "version"
)

// Run applies migrations in the given direction using the provided DSN.
// "version" only reports; it returns the current version and dirty flag.
func Run(dsn string, direction string) (uint, bool, error) {
	if strings.TrimSpace(dsn) == "" {
		return 0, false, errors.New("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	if direction != Up && direction != Down && direction != Version {
		return 0, false, fmt.Errorf("direction must be up, down or version, got %q", direction)
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return 0, false, fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case Up:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return 0, false, err
		}
	case Down:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return 0, false, err
		}
	}

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
