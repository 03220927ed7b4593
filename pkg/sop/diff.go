package sop

import (
	"github.com/aymanbagabas/go-udiff"

	"github.com/jingkaihe/skillforge/pkg/render"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

// Diff is the unified diff between the Markdown views of prev and next.
// Identical SOPs yield an empty string.
func Diff(prev, next sop.SOP) string {
	return udiff.Unified("previous", "current", render.SOP(prev), render.SOP(next))
}
