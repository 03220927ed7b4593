package sop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSOP() SOP {
	return SOP{
		Title:     "写一篇小红书笔记",
		Objective: "产出一篇500字左右的笔记",
		Steps: []Step{
			{StepNumber: 1, Title: "选题", Description: "确定主题", Input: "任务描述", Output: "主题", AcceptanceCriteria: "主题明确"},
			{StepNumber: 2, Title: "写作", Description: "撰写正文", Input: "主题", Output: "正文", AcceptanceCriteria: "500字左右"},
		},
		QualityChecklist: []string{"语气活泼", "包含标签"},
		FinalDeliverable: "一篇笔记",
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validSOP().Validate())

	tests := []struct {
		name    string
		mutate  func(*SOP)
		message string
	}{
		{"blank title", func(s *SOP) { s.Title = "  " }, "title is required"},
		{"blank objective", func(s *SOP) { s.Objective = "" }, "objective is required"},
		{"blank deliverable", func(s *SOP) { s.FinalDeliverable = "" }, "final_deliverable is required"},
		{"no steps", func(s *SOP) { s.Steps = nil }, "at least one step is required"},
		{"gap in numbering", func(s *SOP) { s.Steps[1].StepNumber = 3 }, "expected 2"},
		{"zero step number", func(s *SOP) { s.Steps[0].StepNumber = 0 }, "expected 1"},
		{"blank step field", func(s *SOP) { s.Steps[1].AcceptanceCriteria = "" }, "step 2: acceptance_criteria is required"},
		{"blank checklist item", func(s *SOP) { s.QualityChecklist = []string{"ok", " "} }, "quality_checklist item 2 is blank"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSOP()
			tt.mutate(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateAllowsEmptyChecklist(t *testing.T) {
	s := validSOP()
	s.QualityChecklist = nil
	assert.NoError(t, s.Validate())
}

func TestClone(t *testing.T) {
	original := validSOP()
	clone := original.Clone()
	assert.Equal(t, original, clone)

	clone.Steps[0].Title = "changed"
	clone.QualityChecklist[0] = "changed"
	assert.Equal(t, "选题", original.Steps[0].Title)
	assert.Equal(t, "语气活泼", original.QualityChecklist[0])
}
