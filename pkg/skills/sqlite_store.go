package skills

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/db"
	"github.com/jingkaihe/skillforge/pkg/db/migrations"
	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
)

type skillRow struct {
	Name        string    `db:"name"`
	DisplayName string    `db:"display_name"`
	Payload     string    `db:"payload"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// SQLiteStore keeps skills in the skills table of a SQLite database
type SQLiteStore struct {
	db     *sqlx.DB
	dbPath string
}

// NewSQLiteStore opens dbPath and applies the skills migrations
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	sqlDB, err := db.OpenMigrated(ctx, dbPath, migrations.All())
	if err != nil {
		return nil, failure.Wrap(failure.KindPersistence, "skill.store", err, "failed to open skills database")
	}
	return &SQLiteStore{db: sqlDB, dbPath: dbPath}, nil
}

// List implements Store
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, "SELECT name FROM skills ORDER BY name"); err != nil {
		return nil, failure.Wrap(failure.KindPersistence, "skill.list", err, "failed to list skills")
	}
	return sortedDisplayNames(keys), nil
}

// Load implements Store
func (s *SQLiteStore) Load(ctx context.Context, name string) (skill.Skill, error) {
	const op = "skill.load"

	key, err := keyFor(op, name)
	if err != nil {
		return skill.Skill{}, err
	}

	var payload string
	err = s.db.GetContext(ctx, &payload, "SELECT payload FROM skills WHERE name = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return skill.Skill{}, notFound(op, name)
	}
	if err != nil {
		return skill.Skill{}, failure.Wrap(failure.KindPersistence, op, err, "failed to query skill")
	}

	sk, err := DecodeSkill([]byte(payload))
	if err != nil {
		return skill.Skill{}, failure.Wrap(failure.KindPersistence, op, err, "corrupt skill record "+key)
	}
	return sk, nil
}

// Save implements Store
func (s *SQLiteStore) Save(ctx context.Context, sk skill.Skill) (string, error) {
	const op = "skill.save"

	key, err := keyFor(op, sk.SkillName)
	if err != nil {
		return "", err
	}

	payload, err := EncodeSkill(sk)
	if err != nil {
		return "", failure.Wrap(failure.KindPersistence, op, err, "")
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, "SELECT COUNT(*) > 0 FROM skills WHERE name = ?", key); err != nil {
		return "", failure.Wrap(failure.KindPersistence, op, err, "failed to query skill")
	}
	if exists {
		logger.G(ctx).WithField("skill", sk.SkillName).
			WithField("path", s.dbPath).
			Warn("overwriting existing skill")
	}

	now := time.Now().UTC()
	row := skillRow{
		Name:        key,
		DisplayName: DisplayName(key),
		Payload:     string(payload),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO skills (name, display_name, payload, created_at, updated_at)
		VALUES (:name, :display_name, :payload, :created_at, :updated_at)
		ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, row)
	if err != nil {
		return "", failure.Wrap(failure.KindPersistence, op, err, "failed to save skill")
	}

	return s.dbPath + "#" + key, nil
}

// Delete implements Store
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	const op = "skill.delete"

	key, err := keyFor(op, name)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM skills WHERE name = ?", key)
	if err != nil {
		return failure.Wrap(failure.KindPersistence, op, err, "failed to delete skill")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(op, name)
	}
	return nil
}

// Close implements Store
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
