// Package db opens the SQLite database backing the sqlite skill store and
// applies its schema migrations.
package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA cache_size=1000",
	"PRAGMA temp_store=memory",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// Open opens or creates the SQLite database at dbPath in WAL mode, creating
// parent directories as needed.
func Open(ctx context.Context, dbPath string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := Configure(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	return db, nil
}

// OpenMigrated opens dbPath and applies every pending migration
func OpenMigrated(ctx context.Context, dbPath string, migrations []Migration) (*sqlx.DB, error) {
	db, err := Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	if err := NewMigrationRunner(db).Run(ctx, migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Configure applies the connection pragmas. SQLite allows one writer, so the
// pool is limited to a single connection.
func Configure(ctx context.Context, db *sqlx.DB) error {
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}

	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	return VerifyConfiguration(ctx, db)
}

// VerifyConfiguration checks that the pragmas took effect
func VerifyConfiguration(ctx context.Context, db *sqlx.DB) error {
	checks := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"foreign_keys", "1"},
	}

	for _, c := range checks {
		var got string
		if err := db.GetContext(ctx, &got, "PRAGMA "+c.pragma); err != nil {
			return errors.Wrapf(err, "failed to query %s", c.pragma)
		}
		if strings.ToLower(got) != c.want {
			return errors.Errorf("expected %s=%s, got %s", c.pragma, c.want, got)
		}
	}
	return nil
}
