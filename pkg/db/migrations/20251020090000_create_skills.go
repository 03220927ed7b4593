package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/db"
)

// Migration20251020090000CreateSkills creates the skills table. payload holds
// the full skill record as JSON.
func Migration20251020090000CreateSkills() db.Migration {
	return db.Migration{
		Version:     20251020090000,
		Description: "Create skills table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS skills (
					name TEXT PRIMARY KEY,
					display_name TEXT NOT NULL,
					payload TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)
			`)
			return errors.Wrap(err, "failed to create skills table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS skills")
			return errors.Wrap(err, "failed to drop skills table")
		},
	}
}
