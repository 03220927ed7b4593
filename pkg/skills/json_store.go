package skills

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
)

const jsonExt = ".json"

// JSONStore keeps one <normalized name>.json file per skill in a directory.
// Files are read and written under an advisory lock so a CLI process and the
// API server can share the directory.
type JSONStore struct {
	dir string
}

// NewJSONStore creates a store over dir, creating it if needed
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, failure.Wrap(failure.KindPersistence, "skill.store", err, "failed to create skills directory")
	}
	return &JSONStore{dir: dir}, nil
}

// Dir returns the directory holding the skill files
func (s *JSONStore) Dir() string {
	return s.dir
}

func (s *JSONStore) path(key string) string {
	return filepath.Join(s.dir, key+jsonExt)
}

// List implements Store
func (s *JSONStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, failure.Wrap(failure.KindPersistence, "skill.list", err, "failed to read skills directory")
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, jsonExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, jsonExt))
	}
	return sortedDisplayNames(keys), nil
}

// Load implements Store
func (s *JSONStore) Load(_ context.Context, name string) (skill.Skill, error) {
	const op = "skill.load"

	key, err := keyFor(op, name)
	if err != nil {
		return skill.Skill{}, err
	}

	data, err := lockedfile.Read(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return skill.Skill{}, notFound(op, name)
		}
		return skill.Skill{}, failure.Wrap(failure.KindPersistence, op, err, "failed to read skill file")
	}

	sk, err := DecodeSkill(data)
	if err != nil {
		return skill.Skill{}, failure.Wrap(failure.KindPersistence, op, err, "corrupt skill file "+s.path(key))
	}
	return sk, nil
}

// Save implements Store
func (s *JSONStore) Save(ctx context.Context, sk skill.Skill) (string, error) {
	const op = "skill.save"

	key, err := keyFor(op, sk.SkillName)
	if err != nil {
		return "", err
	}

	data, err := EncodeSkill(sk)
	if err != nil {
		return "", failure.Wrap(failure.KindPersistence, op, err, "")
	}

	path := s.path(key)
	if _, err := os.Stat(path); err == nil {
		logger.G(ctx).WithField("skill", sk.SkillName).
			WithField("path", path).
			Warn("overwriting existing skill")
	}

	if err := lockedfile.Write(path, bytes.NewReader(data), 0o644); err != nil {
		return "", failure.Wrap(failure.KindPersistence, op, err, "failed to write skill file")
	}

	return path, nil
}

// Delete implements Store
func (s *JSONStore) Delete(_ context.Context, name string) error {
	const op = "skill.delete"

	key, err := keyFor(op, name)
	if err != nil {
		return err
	}

	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return notFound(op, name)
		}
		return failure.Wrap(failure.KindPersistence, op, err, "failed to delete skill file")
	}
	return nil
}

// Close implements Store
func (s *JSONStore) Close() error {
	return nil
}
