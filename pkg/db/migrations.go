package db

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Migration is a schema change versioned by timestamp (YYYYMMDDHHmmss)
type Migration struct {
	Version     int64
	Description string
	Up          func(*sql.Tx) error
	Down        func(*sql.Tx) error // optional
}

// MigrationRunner applies migrations and records them in schema_migrations
type MigrationRunner struct {
	db *sqlx.DB
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sqlx.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// Run applies every pending migration in version order, each in its own
// transaction.
func (r *MigrationRunner) Run(ctx context.Context, migrations []Migration) error {
	pending, err := r.Pending(ctx, migrations)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if err := r.apply(ctx, m); err != nil {
			return errors.Wrapf(err, "failed to apply migration %d: %s", m.Version, m.Description)
		}
	}
	return nil
}

// Pending returns the migrations not yet applied, sorted by version
func (r *MigrationRunner) Pending(ctx context.Context, migrations []Migration) ([]Migration, error) {
	applied, err := r.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[int64]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	var pending []Migration
	for _, m := range migrations {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})
	return pending, nil
}

// Rollback reverts the most recently applied migration
func (r *MigrationRunner) Rollback(ctx context.Context, migrations []Migration) error {
	applied, err := r.AppliedVersions(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}
	latest := applied[len(applied)-1]

	for _, m := range migrations {
		if m.Version != latest {
			continue
		}
		if m.Down == nil {
			return errors.Errorf("migration %d has no rollback function", latest)
		}
		return r.withTx(ctx, func(tx *sqlx.Tx) error {
			if err := m.Down(tx.Tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
			return errors.Wrap(err, "failed to remove migration record")
		})
	}

	return errors.Errorf("migration %d not found in provided migrations", latest)
}

// AppliedVersions returns the applied migration versions in ascending order
func (r *MigrationRunner) AppliedVersions(ctx context.Context) ([]int64, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}

	var versions []int64
	if err := r.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version"); err != nil {
		return nil, errors.Wrap(err, "failed to get applied migrations")
	}
	return versions, nil
}

func (r *MigrationRunner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL,
			description TEXT
		)
	`)
	return errors.Wrap(err, "failed to create schema_migrations table")
}

func (r *MigrationRunner) apply(ctx context.Context, m Migration) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := m.Up(tx.Tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UTC(), m.Description)
		return errors.Wrap(err, "failed to record migration")
	})
}

func (r *MigrationRunner) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
