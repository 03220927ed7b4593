package sop

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/skillforge/pkg/completion"
	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/telemetry"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

// Engine binds synthesis, revision and undo to one session's State. State
// only changes when an operation succeeds.
type Engine struct {
	synthesizer *Synthesizer
	reviser     *Reviser
	state       *State
}

// NewEngine creates an Engine over state
func NewEngine(client completion.Client, state *State, opts ...Option) *Engine {
	return &Engine{
		synthesizer: NewSynthesizer(client, opts...),
		reviser:     NewReviser(client, opts...),
		state:       state,
	}
}

// State returns the state the engine operates on
func (e *Engine) State() *State {
	return e.state
}

// Synthesize creates a new SOP and starts a new lineage, discarding history
func (e *Engine) Synthesize(ctx context.Context, in Input) (sop.SOP, error) {
	var out sop.SOP
	err := telemetry.WithSpan(ctx, "sop.synthesize", func(ctx context.Context) error {
		next, err := e.synthesizer.Synthesize(ctx, in)
		if err != nil {
			return err
		}

		e.state.Reset(next)
		out = next
		telemetry.SetAttributes(ctx, attribute.Int("sop.steps", len(next.Steps)))
		logger.G(ctx).WithField("title", next.Title).
			WithField("steps", len(next.Steps)).
			Info("SOP synthesized")
		return nil
	}, attribute.Bool("sop.references", in.References != ""))
	return out, err
}

// Revise replaces the current SOP with a revision driven by feedback. On
// failure neither current nor history change.
func (e *Engine) Revise(ctx context.Context, feedback string) (sop.SOP, error) {
	var out sop.SOP
	err := telemetry.WithSpan(ctx, "sop.revise", func(ctx context.Context) error {
		current, ok := e.state.Current()
		if !ok {
			return failure.New(failure.KindState, "sop.revise", "no SOP to revise, synthesize one first")
		}

		next, err := e.reviser.Revise(ctx, current, feedback)
		if err != nil {
			return err
		}
		if err := e.state.Advance(next); err != nil {
			return err
		}

		out = next
		telemetry.SetAttributes(ctx, attribute.Int("sop.version", e.state.Version()))
		logger.G(ctx).WithField("title", next.Title).
			WithField("version", e.state.Version()).
			Info("SOP revised")
		return nil
	}, attribute.Int("sop.history", e.state.HistoryLen()))
	return out, err
}

// Undo restores the previous version. See State.Undo.
func (e *Engine) Undo() (UndoResult, error) {
	return e.state.Undo()
}

// LastDiff is the diff between the version an undo would restore and the
// current one. It is empty when there is no history.
func (e *Engine) LastDiff() string {
	prev, ok := e.state.Previous()
	if !ok {
		return ""
	}
	current, _ := e.state.Current()
	return Diff(prev, current)
}
