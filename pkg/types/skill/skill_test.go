package skill

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

func TestSkillJSONEmitsArrays(t *testing.T) {
	s := Skill{
		SkillName:    "Empty",
		Version:      Version,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SystemPrompt: "Answer <briefly> & politely",
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, []any{}, raw["input_params"])
	assert.Equal(t, []any{}, raw["output_format"].(map[string]any)["fields"])
	assert.Contains(t, string(data), "<briefly> & politely")

	var decoded Skill
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, s, decoded)
}

func TestSkillJSONKeys(t *testing.T) {
	s := Skill{
		SkillName:    "Note writer",
		Description:  "Writes notes",
		Version:      Version,
		SystemPrompt: "You write notes.",
		InputParams:  []Param{{Name: "topic", Type: "string", Required: true, Example: "weekend"}},
		OutputFormat: OutputFormat{Description: "A note", Fields: []Field{{Name: "title", Description: "Note title"}}},
		SourceSOP:    sop.SOP{Title: "Note writer"},
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	for _, key := range []string{`"skill_name"`, `"description"`, `"version"`, `"created_at"`, `"system_prompt"`, `"input_params"`, `"output_format"`, `"source_sop"`, `"required":true`} {
		assert.Contains(t, string(data), key)
	}
}

func TestSkillValidate(t *testing.T) {
	assert.NoError(t, Skill{SkillName: "a", SystemPrompt: "b"}.Validate())
	assert.EqualError(t, Skill{SystemPrompt: "b"}.Validate(), "skill_name is required")
	assert.EqualError(t, Skill{SkillName: "a"}.Validate(), "system_prompt is required")
}

func TestSchemaValidate(t *testing.T) {
	t.Run("defaults param type", func(t *testing.T) {
		s := Schema{InputParams: []Param{{Name: "topic"}}}
		require.NoError(t, s.Validate())
		assert.Equal(t, DefaultParamType, s.InputParams[0].Type)
	})

	t.Run("rejects unnamed param", func(t *testing.T) {
		s := Schema{InputParams: []Param{{Description: "x"}}}
		assert.EqualError(t, s.Validate(), "input_params[0]: name is required")
	})

	t.Run("rejects unnamed field", func(t *testing.T) {
		s := Schema{OutputFormat: &OutputFormat{Fields: []Field{{Description: "x"}}}}
		assert.EqualError(t, s.Validate(), "output_format.fields[0]: name is required")
	})

	t.Run("empty schema is valid", func(t *testing.T) {
		var s Schema
		require.NoError(t, json.Unmarshal([]byte(`{}`), &s))
		require.NoError(t, s.Validate())
		assert.Equal(t, OutputFormat{}, s.Output())
		assert.Nil(t, s.InputParams)
	})

	t.Run("empty param list becomes nil", func(t *testing.T) {
		var s Schema
		require.NoError(t, json.Unmarshal([]byte(`{"input_params":[],"output_format":{"description":"d","fields":[]}}`), &s))
		require.NoError(t, s.Validate())
		assert.Nil(t, s.InputParams)
		assert.Nil(t, s.Output().Fields)
	})
}
