package sop

import (
	"context"
	"strings"

	"github.com/jingkaihe/skillforge/pkg/completion"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

// Reviser asks the completion service for a whole replacement of an SOP
// given user feedback.
type Reviser struct {
	client completion.Client
	opts   options
}

// NewReviser creates a Reviser backed by client
func NewReviser(client completion.Client, opts ...Option) *Reviser {
	return &Reviser{client: client, opts: newOptions(opts)}
}

// Revise returns the revised SOP. current is never modified.
func (r *Reviser) Revise(ctx context.Context, current sop.SOP, feedback string) (sop.SOP, error) {
	const op = "sop.revise"

	if strings.TrimSpace(feedback) == "" {
		return sop.SOP{}, failure.New(failure.KindValidation, op, "feedback is required")
	}

	prompt, err := r.opts.renderer.Revise(current, feedback)
	if err != nil {
		return sop.SOP{}, failure.Wrap(failure.KindValidation, op, err, "failed to render prompt")
	}

	return requestSOP(ctx, r.client, op, prompt, r.opts.temperature)
}
