package skills

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/skillforge/pkg/render"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
)

// SkillFileName is the file name of an exported skill inside its directory
const SkillFileName = "SKILL.md"

// Metadata is the YAML frontmatter of an exported SKILL.md
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version,omitempty"`
	CreatedAt   string `yaml:"created_at,omitempty"`
}

// ExportSkillMD renders sk as a SKILL.md document: YAML frontmatter followed
// by the system prompt and the input/output sections.
func ExportSkillMD(sk skill.Skill) ([]byte, error) {
	md := Metadata{
		Name:        sk.SkillName,
		Description: sk.Description,
		Version:     sk.Version,
	}
	if !sk.CreatedAt.IsZero() {
		md.CreatedAt = sk.CreatedAt.UTC().Format(time.RFC3339)
	}

	front, err := yaml.Marshal(md)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal frontmatter")
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(front)
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimSpace(sk.SystemPrompt))
	buf.WriteString("\n\n")
	buf.WriteString(render.InputParams(sk.InputParams))
	buf.WriteString(strings.TrimRight(render.Output(sk.OutputFormat), "\n"))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// WriteSkillMD writes sk to <dir>/<normalized name>/SKILL.md and returns the
// file path.
func WriteSkillMD(dir string, sk skill.Skill) (string, error) {
	key := NormalizeName(sk.SkillName)
	if key == "" {
		return "", errors.New("skill name is required")
	}

	content, err := ExportSkillMD(sk)
	if err != nil {
		return "", err
	}

	skillDir := filepath.Join(dir, key)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create skill directory")
	}
	path := filepath.Join(skillDir, SkillFileName)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write skill file")
	}
	return path, nil
}

// ParseSkillMD reads the frontmatter and body of a SKILL.md document
func ParseSkillMD(content []byte) (Metadata, string, error) {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return Metadata{}, "", errors.Wrap(err, "failed to parse markdown")
	}

	data := meta.Get(pctx)
	if data == nil {
		return Metadata{}, "", errors.New("missing frontmatter")
	}

	var out Metadata
	out.Name = stringValue(data["name"])
	out.Description = stringValue(data["description"])
	out.Version = stringValue(data["version"])
	out.CreatedAt = stringValue(data["created_at"])

	if out.Name == "" {
		return Metadata{}, "", errors.New("skill name is required in frontmatter")
	}
	if out.Description == "" {
		return Metadata{}, "", errors.New("skill description is required in frontmatter")
	}

	return out, extractBody(string(content)), nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return strings.TrimSpace(strings.Trim(strings.TrimSpace(yamlScalar(t)), "'\""))
	}
}

func yamlScalar(v any) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}

// extractBody drops the frontmatter block of a Markdown document
func extractBody(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
		}
	}
	return content
}
