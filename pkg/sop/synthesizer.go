// Package sop synthesizes SOPs from task descriptions, revises them from
// feedback and keeps the per-session undo history.
package sop

import (
	"context"
	"strings"

	"github.com/jingkaihe/skillforge/pkg/completion"
	"github.com/jingkaihe/skillforge/pkg/prompts"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

// DefaultTemperature is the decoding temperature of synthesis and revision
const DefaultTemperature = 0.3

// Input is what a synthesis starts from
type Input struct {
	Task        string
	Deliverable string
	// References is extracted reference material appended to the prompt
	References string
}

// Option configures a Synthesizer or Reviser
type Option func(*options)

type options struct {
	renderer    *prompts.Renderer
	temperature float64
}

// WithRenderer renders prompts with r instead of the embedded templates
func WithRenderer(r *prompts.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithTemperature sets the decoding temperature
func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = t }
}

func newOptions(opts []Option) options {
	o := options{renderer: prompts.Default(), temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Synthesizer turns a task description into an SOP with one completion
type Synthesizer struct {
	client completion.Client
	opts   options
}

// NewSynthesizer creates a Synthesizer backed by client
func NewSynthesizer(client completion.Client, opts ...Option) *Synthesizer {
	return &Synthesizer{client: client, opts: newOptions(opts)}
}

// Synthesize produces a new SOP. Blank inputs fail before the completion
// service is contacted.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (sop.SOP, error) {
	const op = "sop.synthesize"

	if strings.TrimSpace(in.Task) == "" {
		return sop.SOP{}, failure.New(failure.KindValidation, op, "task description is required")
	}
	if strings.TrimSpace(in.Deliverable) == "" {
		return sop.SOP{}, failure.New(failure.KindValidation, op, "deliverable is required")
	}

	prompt, err := s.opts.renderer.Synthesize(in.Task, in.Deliverable, in.References)
	if err != nil {
		return sop.SOP{}, failure.Wrap(failure.KindValidation, op, err, "failed to render prompt")
	}

	return requestSOP(ctx, s.client, op, prompt, s.opts.temperature)
}

// requestSOP runs a JSON completion and strictly parses the reply as an SOP
func requestSOP(ctx context.Context, client completion.Client, op, prompt string, temperature float64) (sop.SOP, error) {
	var out sop.SOP
	err := completion.CompleteJSON(ctx, client, op, completion.Request{
		Messages:    []completion.Message{completion.UserMessage(prompt)},
		Temperature: temperature,
	}, &out)
	if err != nil {
		return sop.SOP{}, err
	}

	if err := out.Validate(); err != nil {
		return sop.SOP{}, failure.Wrap(failure.KindFormat, op, err, "completion returned a malformed SOP")
	}
	return out, nil
}
