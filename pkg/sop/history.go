package sop

import "github.com/jingkaihe/skillforge/pkg/types/sop"

// History is the undo stack of SOP versions, most recent on top. A positive
// bound drops the oldest version once exceeded.
type History struct {
	items []sop.SOP
	bound int
}

// NewHistory creates an empty history keeping at most bound versions; zero
// or negative keeps every version.
func NewHistory(bound int) *History {
	return &History{bound: bound}
}

// Push stores a copy of s on top of the stack
func (h *History) Push(s sop.SOP) {
	h.items = append(h.items, s.Clone())
	if h.bound > 0 && len(h.items) > h.bound {
		h.items = append([]sop.SOP(nil), h.items[len(h.items)-h.bound:]...)
	}
}

// Pop removes and returns the most recent version
func (h *History) Pop() (sop.SOP, bool) {
	if len(h.items) == 0 {
		return sop.SOP{}, false
	}
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last, true
}

// Peek returns the most recent version without removing it
func (h *History) Peek() (sop.SOP, bool) {
	if len(h.items) == 0 {
		return sop.SOP{}, false
	}
	return h.items[len(h.items)-1].Clone(), true
}

// Len returns the number of stored versions
func (h *History) Len() int {
	return len(h.items)
}

// Empty reports whether there is nothing to undo
func (h *History) Empty() bool {
	return len(h.items) == 0
}

// Reset discards every stored version
func (h *History) Reset() {
	h.items = nil
}

// Versions returns copies of the stored versions, oldest first
func (h *History) Versions() []sop.SOP {
	out := make([]sop.SOP, len(h.items))
	for i, s := range h.items {
		out[i] = s.Clone()
	}
	return out
}
