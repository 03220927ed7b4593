// Package migrations contains the schema migrations of the sqlite skill
// store, versioned by timestamp (YYYYMMDDHHmmss).
package migrations

import (
	"github.com/jingkaihe/skillforge/pkg/db"
)

// All returns every registered migration. New migrations are appended here.
func All() []db.Migration {
	return []db.Migration{
		Migration20251020090000CreateSkills(),
		Migration20251020090001AddSkillsIndexes(),
	}
}
