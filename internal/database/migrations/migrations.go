// Package migrations owns the operation log schema. The SQL files are
// embedded and applied with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

var (
	// ErrNotMigrated means the database has no schema yet.
	ErrNotMigrated = errors.New("operation log has no schema version")
	// ErrDirty means a previous migration stopped halfway.
	ErrDirty = errors.New("operation log schema is dirty")
	// ErrBehind means migrations are pending.
	ErrBehind = errors.New("operation log schema is out of date")
	// ErrAhead means the database was migrated by a newer vidup.
	ErrAhead = errors.New("operation log schema is newer than this vidup")
)

// LatestVersion returns the highest schema version embedded in the binary.
func LatestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("reading embedded migrations: %w", err)
	}
	defer src.Close()

	latest, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("reading first migration: %w", err)
	}
	for {
		next, err := src.Next(latest)
		if errors.Is(err, fs.ErrNotExist) {
			return latest, nil
		}
		if err != nil {
			return 0, fmt.Errorf("reading migration after %d: %w", latest, err)
		}
		latest = next
	}
}

// Check returns nil when db is exactly at LatestVersion. Otherwise the error
// wraps ErrNotMigrated, ErrDirty, ErrBehind or ErrAhead.
func Check(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	// m is not closed: closing it would close db, which the caller owns.

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return ErrNotMigrated
	}
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w at version %d", ErrDirty, version)
	}
	return compareVersion(version)
}

// MigrateUp applies every pending migration. A database that is already
// current is left alone; one from a newer vidup is refused.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return fmt.Errorf("reading schema version: %w", err)
	case dirty:
		return fmt.Errorf("%w at version %d", ErrDirty, version)
	default:
		if err := compareVersion(version); errors.Is(err, ErrAhead) {
			return err
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating operation log: %w", err)
	}
	return nil
}

func compareVersion(version uint) error {
	latest, err := LatestVersion()
	if err != nil {
		return err
	}
	switch {
	case version < latest:
		return fmt.Errorf("%w: at %d, latest is %d", ErrBehind, version, latest)
	case version > latest:
		return fmt.Errorf("%w: at %d, this build knows %d", ErrAhead, version, latest)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("opening migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}
