// Package sop defines the standard operating procedure document produced by
// synthesis and revision.
package sop

import (
	"strings"

	"github.com/pkg/errors"
)

// Step is one stage of a procedure. The output of step N is expected to be
// consumable as the input of step N+1.
type Step struct {
	StepNumber         int    `json:"step_number" jsonschema:"minimum=1,description=1-based position of the step"`
	Title              string `json:"title" jsonschema:"description=Short step title"`
	Description        string `json:"description" jsonschema:"description=What to do and how to do it"`
	Input              string `json:"input" jsonschema:"description=What this step needs"`
	Output             string `json:"output" jsonschema:"description=What this step produces"`
	AcceptanceCriteria string `json:"acceptance_criteria" jsonschema:"description=How to tell the step is done"`
}

// SOP is a versioned procedure document. Values are never mutated once
// produced; revisions create a new SOP.
type SOP struct {
	Title            string   `json:"title" jsonschema:"description=SOP title"`
	Objective        string   `json:"objective" jsonschema:"description=Summary of the goal"`
	Steps            []Step   `json:"steps" jsonschema:"minItems=1"`
	QualityChecklist []string `json:"quality_checklist"`
	FinalDeliverable string   `json:"final_deliverable" jsonschema:"description=Description of the final deliverable"`
}

// Validate checks that the SOP is well formed: required text fields are
// non-blank and steps are numbered contiguously from 1 in order.
func (s SOP) Validate() error {
	if isBlank(s.Title) {
		return errors.New("title is required")
	}
	if isBlank(s.Objective) {
		return errors.New("objective is required")
	}
	if isBlank(s.FinalDeliverable) {
		return errors.New("final_deliverable is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("at least one step is required")
	}

	for i, step := range s.Steps {
		if step.StepNumber != i+1 {
			return errors.Errorf("step %d has step_number %d, expected %d", i+1, step.StepNumber, i+1)
		}
		if err := step.validate(); err != nil {
			return errors.Wrapf(err, "step %d", step.StepNumber)
		}
	}

	for i, item := range s.QualityChecklist {
		if isBlank(item) {
			return errors.Errorf("quality_checklist item %d is blank", i+1)
		}
	}

	return nil
}

func (s Step) validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"title", s.Title},
		{"description", s.Description},
		{"input", s.Input},
		{"output", s.Output},
		{"acceptance_criteria", s.AcceptanceCriteria},
	}
	for _, f := range fields {
		if isBlank(f.value) {
			return errors.Errorf("%s is required", f.name)
		}
	}
	return nil
}

// Clone returns a deep copy so stored versions never share slices with the
// caller.
func (s SOP) Clone() SOP {
	c := s
	if s.Steps != nil {
		c.Steps = make([]Step, len(s.Steps))
		copy(c.Steps, s.Steps)
	}
	if s.QualityChecklist != nil {
		c.QualityChecklist = make([]string, len(s.QualityChecklist))
		copy(c.QualityChecklist, s.QualityChecklist)
	}
	return c
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
