package sop

import (
	"fmt"

	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

// UndoStatus is the outcome of an undo
type UndoStatus string

const (
	// UndoApplied means the previous version was restored
	UndoApplied UndoStatus = "applied"
	// UndoAtEarliest means there was no earlier version; nothing changed
	UndoAtEarliest UndoStatus = "at_earliest"
)

// UndoResult reports an undo and the version that is now current
type UndoResult struct {
	Status    UndoStatus `json:"status"`
	Remaining int        `json:"remaining"`
	Current   sop.SOP    `json:"current"`
}

// Message is the human readable form of r
func (r UndoResult) Message() string {
	if r.Status == UndoAtEarliest {
		return "already at earliest version, nothing further to undo"
	}
	return fmt.Sprintf("undone, %d more undo(s) available", r.Remaining)
}

// State is the SOP state of one session: the current version, if any, and
// the undo history behind it.
type State struct {
	current *sop.SOP
	history *History
}

// NewState creates an empty state whose history keeps at most maxHistory
// versions (zero for unbounded).
func NewState(maxHistory int) *State {
	return &State{history: NewHistory(maxHistory)}
}

// Current returns a copy of the current SOP
func (s *State) Current() (sop.SOP, bool) {
	if s.current == nil {
		return sop.SOP{}, false
	}
	return s.current.Clone(), true
}

// HasCurrent reports whether an SOP has been synthesized
func (s *State) HasCurrent() bool {
	return s.current != nil
}

// HistoryLen returns the number of versions available to undo
func (s *State) HistoryLen() int {
	return s.history.Len()
}

// Version is the 1-based version number of the current SOP, 0 when absent
func (s *State) Version() int {
	if s.current == nil {
		return 0
	}
	return s.history.Len() + 1
}

// Previous returns the version an undo would restore
func (s *State) Previous() (sop.SOP, bool) {
	return s.history.Peek()
}

// Reset starts a new lineage: next becomes current and history is discarded
func (s *State) Reset(next sop.SOP) {
	c := next.Clone()
	s.current = &c
	s.history.Reset()
}

// Advance pushes the current version onto history and makes next current
func (s *State) Advance(next sop.SOP) error {
	if s.current == nil {
		return failure.New(failure.KindState, "sop.revise", "no SOP to revise, synthesize one first")
	}
	s.history.Push(*s.current)
	c := next.Clone()
	s.current = &c
	return nil
}

// Undo restores the most recent history entry. With an empty history it is
// a no-op reported as UndoAtEarliest; without a current SOP it fails.
func (s *State) Undo() (UndoResult, error) {
	if s.current == nil {
		return UndoResult{}, failure.New(failure.KindState, "sop.undo", "nothing to undo, synthesize an SOP first")
	}

	prev, ok := s.history.Pop()
	if !ok {
		return UndoResult{Status: UndoAtEarliest, Current: s.current.Clone()}, nil
	}

	s.current = &prev
	return UndoResult{
		Status:    UndoApplied,
		Remaining: s.history.Len(),
		Current:   prev.Clone(),
	}, nil
}
