package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/db"
)

// Migration20251020090001AddSkillsIndexes indexes skills by display name and
// update time for listing.
func Migration20251020090001AddSkillsIndexes() db.Migration {
	return db.Migration{
		Version:     20251020090001,
		Description: "Add skills indexes",
		Up: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				"CREATE INDEX IF NOT EXISTS idx_skills_display_name ON skills(display_name)",
				"CREATE INDEX IF NOT EXISTS idx_skills_updated_at ON skills(updated_at)",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return errors.Wrapf(err, "failed to execute %q", stmt)
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				"DROP INDEX IF EXISTS idx_skills_updated_at",
				"DROP INDEX IF EXISTS idx_skills_display_name",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return errors.Wrapf(err, "failed to execute %q", stmt)
				}
			}
			return nil
		},
	}
}
