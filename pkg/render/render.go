// Package render produces the Markdown views of SOPs and skills shown by the
// CLI and returned by the HTTP API.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/jingkaihe/skillforge/pkg/types/skill"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

// SOP renders s as Markdown. The output is deterministic, which Diff relies
// on.
func SOP(s sop.SOP) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", s.Title)
	fmt.Fprintf(&b, "**Objective:** %s\n\n---\n\n", s.Objective)
	b.WriteString("## Steps\n\n")
	for _, step := range s.Steps {
		fmt.Fprintf(&b, "### Step %d: %s\n", step.StepNumber, step.Title)
		fmt.Fprintf(&b, "- **Description:** %s\n", step.Description)
		fmt.Fprintf(&b, "- **Input:** %s\n", step.Input)
		fmt.Fprintf(&b, "- **Output:** %s\n", step.Output)
		fmt.Fprintf(&b, "- **Acceptance criteria:** %s\n\n", step.AcceptanceCriteria)
	}

	b.WriteString("---\n\n## Quality checklist\n\n")
	for _, item := range s.QualityChecklist {
		fmt.Fprintf(&b, "- [ ] %s\n", item)
	}
	fmt.Fprintf(&b, "\n---\n\n**Final deliverable:** %s\n", s.FinalDeliverable)

	return b.String()
}

// Skill renders the metadata of sk as Markdown. The system prompt is not
// included.
func Skill(sk skill.Skill) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", sk.SkillName)
	fmt.Fprintf(&b, "**Description:** %s\n\n", sk.Description)
	fmt.Fprintf(&b, "**Version:** %s\n\n", sk.Version)
	fmt.Fprintf(&b, "**Created:** %s\n\n", formatTime(sk.CreatedAt))

	b.WriteString(InputParams(sk.InputParams))
	b.WriteString(Output(sk.OutputFormat))

	return b.String()
}

// InputParams renders the parameter list section
func InputParams(params []skill.Param) string {
	var b strings.Builder
	b.WriteString("## Input parameters\n\n")
	if len(params) == 0 {
		b.WriteString("_none_\n\n")
	}
	for _, p := range params {
		required := "optional"
		if p.Required {
			required = "required"
		}
		paramType := p.Type
		if paramType == "" {
			paramType = skill.DefaultParamType
		}
		fmt.Fprintf(&b, "- **%s** (%s) [%s]\n", p.Name, paramType, required)
		if p.Description != "" {
			fmt.Fprintf(&b, "  %s\n", p.Description)
		}
		if p.Example != "" {
			fmt.Fprintf(&b, "  Example: `%s`\n", p.Example)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Output renders the output format section
func Output(o skill.OutputFormat) string {
	var b strings.Builder
	b.WriteString("## Output format\n\n")
	if o.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", o.Description)
	}
	for _, f := range o.Fields {
		fmt.Fprintf(&b, "- **%s**: %s\n", f.Name, f.Description)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(time.RFC3339)
}
