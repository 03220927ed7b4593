// Package prompts renders the completion prompts used to synthesize and
// revise SOPs and to compile them into skills.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/types/skill"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

//go:embed templates/*
var TemplateFS embed.FS

// Template paths
const (
	SynthesizeTemplate  = "templates/synthesize.tmpl"
	ReviseTemplate      = "templates/revise.tmpl"
	InstructionTemplate = "templates/instruction.tmpl"
	SchemaTemplate      = "templates/schema.tmpl"
)

// SynthesizeData is the context of the synthesize template
type SynthesizeData struct {
	Task        string
	Deliverable string
	References  string
	SOPSchema   string
}

// ReviseData is the context of the revise template
type ReviseData struct {
	Current   string
	Feedback  string
	SOPSchema string
}

// CompileData is the context of the instruction and schema templates
type CompileData struct {
	SOP          string
	SchemaSchema string
}

// Renderer renders prompt templates. Its overrides can be replaced at run
// time with Reload.
type Renderer struct {
	fsys fs.FS

	mu        sync.RWMutex
	templates *template.Template
	parseErr  error
}

var defaultRenderer = NewRenderer(TemplateFS)

// Default returns the renderer over the embedded templates
func Default() *Renderer {
	return defaultRenderer
}

// NewRenderer creates a renderer over the templates/ directory of fsys
func NewRenderer(fsys fs.FS) *Renderer {
	return NewRendererWithOverrides(fsys, nil)
}

// NewRendererWithOverrides creates a renderer whose templates are replaced by
// overrides, keyed by template path (e.g. templates/instruction.tmpl).
func NewRendererWithOverrides(fsys fs.FS, overrides map[string]string) *Renderer {
	renderer := &Renderer{fsys: fsys}
	renderer.templates, renderer.parseErr = parseTemplates(fsys, overrides)
	return renderer
}

// Reload replaces the overrides of r. When the new set fails to parse the
// current templates stay in use and the parse error is returned.
func (r *Renderer) Reload(overrides map[string]string) error {
	templates, err := parseTemplates(r.fsys, overrides)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates, r.parseErr = templates, nil
	return nil
}

// LoadOverrides reads every *.tmpl file in dir, keyed by its template path.
// An empty dir yields no overrides.
func LoadOverrides(dir string) (map[string]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read prompt directory %s", dir)
	}

	overrides := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmpl") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read prompt template %s", entry.Name())
		}
		overrides["templates/"+entry.Name()] = string(content)
	}
	return overrides, nil
}

// Render renders the named template with data
func (r *Renderer) Render(name string, data any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.parseErr != nil {
		return "", errors.Wrap(r.parseErr, "failed to initialize templates")
	}
	if r.templates.Lookup(name) == nil {
		return "", errors.Errorf("template %s not found", name)
	}

	var buf strings.Builder
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", errors.Wrapf(err, "failed to execute template %s", name)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Synthesize renders the prompt turning a task into an SOP
func (r *Renderer) Synthesize(task, deliverable, references string) (string, error) {
	return r.Render(SynthesizeTemplate, SynthesizeData{
		Task:        task,
		Deliverable: deliverable,
		References:  references,
		SOPSchema:   sopSchema,
	})
}

// Revise renders the prompt asking for a whole replacement of current
func (r *Renderer) Revise(current sop.SOP, feedback string) (string, error) {
	doc, err := MarshalIndent(current)
	if err != nil {
		return "", err
	}
	return r.Render(ReviseTemplate, ReviseData{
		Current:   doc,
		Feedback:  feedback,
		SOPSchema: sopSchema,
	})
}

// Instruction renders the prompt deriving a skill's system prompt from s
func (r *Renderer) Instruction(s sop.SOP) (string, error) {
	return r.renderCompile(InstructionTemplate, s)
}

// Schema renders the prompt deriving a skill's input/output schema from s
func (r *Renderer) Schema(s sop.SOP) (string, error) {
	return r.renderCompile(SchemaTemplate, s)
}

func (r *Renderer) renderCompile(name string, s sop.SOP) (string, error) {
	doc, err := MarshalIndent(s)
	if err != nil {
		return "", err
	}
	return r.Render(name, CompileData{SOP: doc, SchemaSchema: schemaSchema})
}

// MarshalIndent renders v as 2-space indented JSON without HTML escaping so
// non-ASCII task text stays readable in prompts.
func MarshalIndent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", errors.Wrap(err, "failed to marshal prompt document")
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

var (
	sopSchema    = mustSchema[sop.SOP]()
	schemaSchema = mustSchema[skill.Schema]()
)

// GenerateSchema reflects the JSON schema of T
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func mustSchema[T any]() string {
	doc, err := MarshalIndent(GenerateSchema[T]())
	if err != nil {
		panic(err)
	}
	return doc
}

func parseTemplates(templateFS fs.FS, overrides map[string]string) (*template.Template, error) {
	templatePaths, err := collectTemplatePaths(templateFS, "templates")
	if err != nil {
		return nil, errors.Wrap(err, "failed to collect template paths")
	}

	templates := template.New("templates")
	var selfRef *template.Template
	templates = templates.Funcs(template.FuncMap{
		"include": func(templateName string, data any) (string, error) {
			var buf strings.Builder
			err := selfRef.ExecuteTemplate(&buf, templateName, data)
			return buf.String(), err
		},
	})
	selfRef = templates

	for _, path := range templatePaths {
		content, ok := overrides[path]
		if !ok {
			raw, err := fs.ReadFile(templateFS, path)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read template file %s", path)
			}
			content = string(raw)
		}
		if _, err := templates.New(path).Parse(content); err != nil {
			return nil, errors.Wrapf(err, "failed to parse template %s", path)
		}
	}

	for path, content := range overrides {
		if slices.Contains(templatePaths, path) {
			continue
		}
		if _, err := templates.New(path).Parse(content); err != nil {
			return nil, errors.Wrapf(err, "failed to parse override template %s", path)
		}
	}

	return templates, nil
}

func collectTemplatePaths(templateFS fs.FS, dir string) ([]string, error) {
	if _, err := fs.Stat(templateFS, dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	err := fs.WalkDir(templateFS, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}
