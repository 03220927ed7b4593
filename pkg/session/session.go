// Package session binds the SOP revision engine, the active skill and its
// conversation into one user workflow.
package session

import (
	"context"

	"github.com/jingkaihe/skillforge/pkg/chat"
	"github.com/jingkaihe/skillforge/pkg/completion"
	"github.com/jingkaihe/skillforge/pkg/export"
	"github.com/jingkaihe/skillforge/pkg/ingest"
	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/skills"
	sopengine "github.com/jingkaihe/skillforge/pkg/sop"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

// Session is the state of one user: the SOP being drafted with its undo
// history, the active skill and the conversation with it. A Session is not
// safe for concurrent use; Manager serialises access.
type Session struct {
	id           string
	engine       *sopengine.Engine
	compiler     *skills.Compiler
	store        skills.Store
	invoker      *chat.Invoker
	exporter     *export.Exporter
	active       *skill.Skill
	conversation *chat.Conversation
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Synthesize drafts a new SOP from a task, starting a new lineage
func (s *Session) Synthesize(ctx context.Context, task, deliverable string, refs []ingest.Attachment) (sop.SOP, error) {
	return s.engine.Synthesize(ctx, sopengine.Input{
		Task:        task,
		Deliverable: deliverable,
		References:  ingest.Concat(refs),
	})
}

// Revise replaces the current SOP with a feedback driven revision
func (s *Session) Revise(ctx context.Context, feedback string) (sop.SOP, error) {
	return s.engine.Revise(ctx, feedback)
}

// Undo restores the previous SOP version
func (s *Session) Undo() (sopengine.UndoResult, error) {
	return s.engine.Undo()
}

// Diff shows what the last revision changed
func (s *Session) Diff() string {
	return s.engine.LastDiff()
}

// CurrentSOP returns the SOP being drafted
func (s *Session) CurrentSOP() (sop.SOP, bool) {
	return s.engine.State().Current()
}

// Compile turns the current SOP into a skill, saves it and makes it the
// active skill with a fresh conversation. Nothing changes unless both the
// compilation and the save succeed.
func (s *Session) Compile(ctx context.Context) (skill.Skill, string, error) {
	const op = "skill.compile"

	current, ok := s.engine.State().Current()
	if !ok {
		return skill.Skill{}, "", failure.New(failure.KindState, op, "no SOP to compile, synthesize one first")
	}

	sk, err := s.compiler.Compile(ctx, current)
	if err != nil {
		return skill.Skill{}, "", err
	}

	location, err := s.store.Save(ctx, sk)
	if err != nil {
		if _, labeled := failure.KindOf(err); !labeled {
			err = failure.Wrap(failure.KindPersistence, op, err, "failed to save skill")
		}
		return skill.Skill{}, "", err
	}

	s.activate(sk)
	logger.G(ctx).WithField("skill", sk.SkillName).
		WithField("location", location).
		WithField("session", s.id).
		Info("skill compiled and saved")
	return sk, location, nil
}

// LoadSkill makes the stored skill name the active skill
func (s *Session) LoadSkill(ctx context.Context, name string) (skill.Skill, error) {
	sk, err := s.store.Load(ctx, name)
	if err != nil {
		return skill.Skill{}, err
	}
	s.activate(sk)
	return sk, nil
}

// ActiveSkill returns the skill chat messages are sent to
func (s *Session) ActiveSkill() (skill.Skill, bool) {
	if s.active == nil {
		return skill.Skill{}, false
	}
	return *s.active, true
}

// Invoke sends message, with any attachments inlined, to the active skill
func (s *Session) Invoke(ctx context.Context, message string, atts []ingest.Attachment) (string, error) {
	if s.active == nil {
		return "", failure.New(failure.KindState, "skill.invoke", "no active skill, compile or load one first")
	}
	return s.invoker.Invoke(ctx, *s.active, s.conversation, ingest.AppendToMessage(message, atts))
}

// Messages returns the conversation with the active skill
func (s *Session) Messages() []completion.Message {
	return s.conversation.Messages()
}

// ClearConversation discards the conversation, keeping the active skill
func (s *Session) ClearConversation() {
	s.conversation.Clear()
}

// Export renders the last skill reply as a document of format f
func (s *Session) Export(ctx context.Context, f export.Format) (export.Document, error) {
	const op = "export"

	if s.active == nil {
		return export.Document{}, failure.New(failure.KindState, op, "no active skill")
	}
	reply, ok := s.conversation.LastReply()
	if !ok {
		return export.Document{}, failure.New(failure.KindState, op, "no reply to export yet")
	}
	return s.exporter.Export(ctx, s.active.SkillName, reply, f)
}

func (s *Session) activate(sk skill.Skill) {
	s.active = &sk
	s.conversation.Clear()
}

// Snapshot is a read-only view of a session
type Snapshot struct {
	ID          string               `json:"id"`
	SOP         *sop.SOP             `json:"sop,omitempty"`
	Version     int                  `json:"version"`
	UndoDepth   int                  `json:"undo_depth"`
	ActiveSkill string               `json:"active_skill,omitempty"`
	Messages    []completion.Message `json:"messages"`
}

// Snapshot returns the current view of the session
func (s *Session) Snapshot() Snapshot {
	state := s.engine.State()
	snap := Snapshot{
		ID:        s.id,
		Version:   state.Version(),
		UndoDepth: state.HistoryLen(),
		Messages:  s.conversation.Messages(),
	}
	if current, ok := state.Current(); ok {
		snap.SOP = &current
	}
	if s.active != nil {
		snap.ActiveSkill = s.active.SkillName
	}
	return snap
}
