package sop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

func titled(title string) sop.SOP {
	return sop.SOP{Title: title}
}

func TestHistoryLIFO(t *testing.T) {
	h := NewHistory(0)
	assert.True(t, h.Empty())

	h.Push(titled("v1"))
	h.Push(titled("v2"))
	assert.Equal(t, 2, h.Len())

	top, ok := h.Peek()
	require.True(t, ok)
	assert.Equal(t, "v2", top.Title)

	popped, ok := h.Pop()
	require.True(t, ok)
	assert.Equal(t, "v2", popped.Title)
	popped, ok = h.Pop()
	require.True(t, ok)
	assert.Equal(t, "v1", popped.Title)

	_, ok = h.Pop()
	assert.False(t, ok)
	_, ok = h.Peek()
	assert.False(t, ok)
}

func TestHistoryBound(t *testing.T) {
	h := NewHistory(2)
	h.Push(titled("v1"))
	h.Push(titled("v2"))
	h.Push(titled("v3"))

	versions := h.Versions()
	require.Len(t, versions, 2)
	assert.Equal(t, "v2", versions[0].Title)
	assert.Equal(t, "v3", versions[1].Title)
}

func TestHistoryStoresCopies(t *testing.T) {
	h := NewHistory(0)
	s := sop.SOP{Title: "v1", QualityChecklist: []string{"a"}}
	h.Push(s)
	s.QualityChecklist[0] = "mutated"

	top, _ := h.Peek()
	assert.Equal(t, "a", top.QualityChecklist[0])

	h.Reset()
	assert.True(t, h.Empty())
}
