// Package skill defines the compiled, persisted Skill record and the schema
// payload derived from an SOP.
package skill

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

// Version is the version stamped on every compiled skill. Revisions do not
// bump it.
const Version = "1.0"

// DefaultParamType is used when the schema omits a parameter type
const DefaultParamType = "string"

// Param describes one invocation parameter
type Param struct {
	Name        string `json:"name" jsonschema:"description=Parameter name"`
	Description string `json:"description" jsonschema:"description=What the parameter means"`
	Type        string `json:"type" jsonschema:"description=Value type such as string or number"`
	Required    bool   `json:"required"`
	Example     string `json:"example" jsonschema:"description=Example value"`
}

// Field describes one field of the expected output
type Field struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// OutputFormat describes what an invocation is expected to return
type OutputFormat struct {
	Description string  `json:"description"`
	Fields      []Field `json:"fields"`
}

// MarshalJSON always emits fields as an array
func (o OutputFormat) MarshalJSON() ([]byte, error) {
	type alias OutputFormat
	a := alias(o)
	if a.Fields == nil {
		a.Fields = []Field{}
	}
	return marshalNoEscape(a)
}

// UnmarshalJSON decodes an empty fields array as nil
func (o *OutputFormat) UnmarshalJSON(data []byte) error {
	type alias OutputFormat
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if len(a.Fields) == 0 {
		a.Fields = nil
	}
	*o = OutputFormat(a)
	return nil
}

// Skill is a compiled artifact: an executable instruction text plus an
// advisory input/output schema and the SOP it was compiled from.
type Skill struct {
	SkillName    string       `json:"skill_name"`
	Description  string       `json:"description"`
	Version      string       `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	SystemPrompt string       `json:"system_prompt"`
	InputParams  []Param      `json:"input_params"`
	OutputFormat OutputFormat `json:"output_format"`
	SourceSOP    sop.SOP      `json:"source_sop"`
}

// MarshalJSON always emits input_params as an array
func (s Skill) MarshalJSON() ([]byte, error) {
	type alias Skill
	a := alias(s)
	if a.InputParams == nil {
		a.InputParams = []Param{}
	}
	return marshalNoEscape(a)
}

// UnmarshalJSON decodes an empty input_params array as nil so that a saved
// skill loads back equal to the value that was saved.
func (s *Skill) UnmarshalJSON(data []byte) error {
	type alias Skill
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if len(a.InputParams) == 0 {
		a.InputParams = nil
	}
	*s = Skill(a)
	return nil
}

// Validate checks the fields a stored skill must carry to be usable
func (s Skill) Validate() error {
	if strings.TrimSpace(s.SkillName) == "" {
		return errors.New("skill_name is required")
	}
	if strings.TrimSpace(s.SystemPrompt) == "" {
		return errors.New("system_prompt is required")
	}
	return nil
}

// Schema is the structured payload of the schema derivation call. Both parts
// are optional and default to empty.
type Schema struct {
	InputParams  []Param       `json:"input_params,omitempty"`
	OutputFormat *OutputFormat `json:"output_format,omitempty"`
}

// Validate checks parameter and field names and fills in default parameter
// types. Empty lists are normalized to nil, the form a stored skill decodes to.
func (s *Schema) Validate() error {
	if len(s.InputParams) == 0 {
		s.InputParams = nil
	}
	for i := range s.InputParams {
		p := &s.InputParams[i]
		if strings.TrimSpace(p.Name) == "" {
			return errors.Errorf("input_params[%d]: name is required", i)
		}
		if strings.TrimSpace(p.Type) == "" {
			p.Type = DefaultParamType
		}
	}
	if s.OutputFormat != nil {
		for i, f := range s.OutputFormat.Fields {
			if strings.TrimSpace(f.Name) == "" {
				return errors.Errorf("output_format.fields[%d]: name is required", i)
			}
		}
	}
	return nil
}

// Output returns the output format, or an empty one when absent
func (s Schema) Output() OutputFormat {
	if s.OutputFormat == nil {
		return OutputFormat{}
	}
	return *s.OutputFormat
}

// marshalNoEscape encodes v without escaping <, > and & so prompts stay
// readable in stored files.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
