package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
)

// ErrNotFound is returned, wrapped in a persistence failure, when a skill
// does not exist in the store.
var ErrNotFound = errors.New("skill not found")

// Store persists skills keyed by their normalized name. Saving an existing
// key overwrites it.
type Store interface {
	// List returns the display names of every stored skill, sorted
	List(ctx context.Context) ([]string, error)
	// Load returns the skill stored under name, in display or normalized form
	Load(ctx context.Context, name string) (skill.Skill, error)
	// Save stores sk and returns where it was written
	Save(ctx context.Context, sk skill.Skill) (string, error)
	// Delete removes the skill stored under name
	Delete(ctx context.Context, name string) error
	Close() error
}

// NormalizeName derives the persistence key of a skill name: whitespace and
// path separators become underscores.
func NormalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}

// DisplayName turns a persistence key back into display form
func DisplayName(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

// FilterNames keeps the names matching a glob pattern such as "report*".
// Matching is case-insensitive; an empty pattern keeps every name.
func FilterNames(names []string, pattern string) ([]string, error) {
	if pattern == "" {
		return names, nil
	}
	pattern = strings.ToLower(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, failure.Newf(failure.KindValidation, "skill.list", "invalid filter pattern %q", pattern)
	}

	var out []string
	for _, name := range names {
		ok, err := doublestar.Match(pattern, strings.ToLower(name))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to match %q", name)
		}
		if ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// EncodeSkill serializes sk as the human-readable document written by every
// store: 2-space indented UTF-8 JSON without HTML escaping.
func EncodeSkill(sk skill.Skill) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sk); err != nil {
		return nil, errors.Wrap(err, "failed to marshal skill")
	}
	return buf.Bytes(), nil
}

// DecodeSkill parses a stored skill document
func DecodeSkill(data []byte) (skill.Skill, error) {
	var sk skill.Skill
	if err := json.Unmarshal(data, &sk); err != nil {
		return skill.Skill{}, errors.Wrap(err, "failed to unmarshal skill")
	}
	if err := sk.Validate(); err != nil {
		return skill.Skill{}, errors.Wrap(err, "invalid skill record")
	}
	return sk, nil
}

func keyFor(op, name string) (string, error) {
	key := NormalizeName(name)
	if key == "" {
		return "", failure.New(failure.KindValidation, op, "skill name is required")
	}
	return key, nil
}

func notFound(op, name string) error {
	return failure.Wrap(failure.KindPersistence, op, errors.Wrapf(ErrNotFound, "%q", name), "")
}

func sortedDisplayNames(keys []string) []string {
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, DisplayName(key))
	}
	sort.Strings(names)
	return names
}
