// Package skills compiles finalized SOPs into skills and persists them.
package skills

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/skillforge/pkg/completion"
	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/prompts"
	"github.com/jingkaihe/skillforge/pkg/telemetry"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

// DefaultTemperature is the decoding temperature of both derivations
const DefaultTemperature = 0.2

// Compiler derives a skill from an SOP with two independent completions: the
// instruction text and the input/output schema.
type Compiler struct {
	client      completion.Client
	renderer    *prompts.Renderer
	temperature float64
	now         func() time.Time
}

// CompilerOption configures a Compiler
type CompilerOption func(*Compiler)

// WithClock sets the clock stamping CreatedAt
func WithClock(now func() time.Time) CompilerOption {
	return func(c *Compiler) { c.now = now }
}

// WithRenderer renders prompts with r instead of the embedded templates
func WithRenderer(r *prompts.Renderer) CompilerOption {
	return func(c *Compiler) { c.renderer = r }
}

// WithTemperature sets the decoding temperature
func WithTemperature(t float64) CompilerOption {
	return func(c *Compiler) { c.temperature = t }
}

// NewCompiler creates a Compiler backed by client
func NewCompiler(client completion.Client, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		client:      client,
		renderer:    prompts.Default(),
		temperature: DefaultTemperature,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile derives a skill from s. Both derivations run concurrently and must
// both succeed; otherwise no skill is returned.
func (c *Compiler) Compile(ctx context.Context, s sop.SOP) (skill.Skill, error) {
	const op = "skill.compile"

	if strings.TrimSpace(s.Title) == "" {
		return skill.Skill{}, failure.New(failure.KindValidation, op, "SOP title is required")
	}
	if strings.TrimSpace(s.Objective) == "" {
		return skill.Skill{}, failure.New(failure.KindValidation, op, "SOP objective is required")
	}

	var out skill.Skill
	err := telemetry.WithSpan(ctx, op, func(ctx context.Context) error {
		var (
			wg          sync.WaitGroup
			instruction string
			schema      skill.Schema
			instrErr    error
			schemaErr   error
		)

		wg.Add(2)
		go func() {
			defer wg.Done()
			instruction, instrErr = c.deriveInstruction(ctx, s)
		}()
		go func() {
			defer wg.Done()
			schema, schemaErr = c.deriveSchema(ctx, s)
		}()
		wg.Wait()

		var result *multierror.Error
		if instrErr != nil {
			result = multierror.Append(result, instrErr)
		}
		if schemaErr != nil {
			result = multierror.Append(result, schemaErr)
		}
		if result.ErrorOrNil() != nil {
			kind, ok := failure.KindOf(result.Errors[0])
			if !ok {
				kind = failure.KindService
			}
			if len(result.Errors) == 1 {
				return result.Errors[0]
			}
			return failure.Wrap(kind, op, result, "skill compilation failed")
		}

		out = skill.Skill{
			SkillName:    s.Title,
			Description:  s.Objective,
			Version:      skill.Version,
			CreatedAt:    c.now().UTC().Truncate(time.Second),
			SystemPrompt: instruction,
			InputParams:  schema.InputParams,
			OutputFormat: schema.Output(),
			SourceSOP:    s.Clone(),
		}
		telemetry.SetAttributes(ctx,
			attribute.Int("skill.input_params", len(out.InputParams)),
			attribute.Int("skill.output_fields", len(out.OutputFormat.Fields)),
		)
		return nil
	}, attribute.String("skill.name", s.Title))
	if err != nil {
		return skill.Skill{}, err
	}

	logger.G(ctx).WithField("skill", out.SkillName).
		WithField("input_params", len(out.InputParams)).
		Info("skill compiled")
	return out, nil
}

func (c *Compiler) deriveInstruction(ctx context.Context, s sop.SOP) (string, error) {
	const op = "skill.compile.instruction"

	prompt, err := c.renderer.Instruction(s)
	if err != nil {
		return "", failure.Wrap(failure.KindValidation, op, err, "failed to render prompt")
	}

	text, err := completion.CompleteText(ctx, c.client, op, completion.Request{
		Messages:    []completion.Message{completion.UserMessage(prompt)},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", failure.New(failure.KindFormat, op, "completion returned an empty system prompt")
	}
	return text, nil
}

func (c *Compiler) deriveSchema(ctx context.Context, s sop.SOP) (skill.Schema, error) {
	const op = "skill.compile.schema"

	prompt, err := c.renderer.Schema(s)
	if err != nil {
		return skill.Schema{}, failure.Wrap(failure.KindValidation, op, err, "failed to render prompt")
	}

	var schema skill.Schema
	err = completion.CompleteJSON(ctx, c.client, op, completion.Request{
		Messages:    []completion.Message{completion.UserMessage(prompt)},
		Temperature: c.temperature,
	}, &schema)
	if err != nil {
		return skill.Schema{}, err
	}

	if err := schema.Validate(); err != nil {
		return skill.Schema{}, failure.Wrap(failure.KindFormat, op, err, "completion returned a malformed schema")
	}
	return schema, nil
}
