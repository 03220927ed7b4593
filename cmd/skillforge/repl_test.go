package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillforge/pkg/completion"
	"github.com/jingkaihe/skillforge/pkg/config"
	"github.com/jingkaihe/skillforge/pkg/presenter"
	"github.com/jingkaihe/skillforge/pkg/session"
	"github.com/jingkaihe/skillforge/pkg/skills"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

func sopJSON(t *testing.T, title string) string {
	t.Helper()
	data, err := json.Marshal(sop.SOP{
		Title:     title,
		Objective: "objective",
		Steps: []sop.Step{{
			StepNumber: 1, Title: "write", Description: "write it",
			Input: "task", Output: "text", AcceptanceCriteria: "done",
		}},
		QualityChecklist: []string{"proofread"},
		FinalDeliverable: "a note",
	})
	require.NoError(t, err)
	return string(data)
}

func newTestSession(t *testing.T) (*session.Session, *completion.FakeClient, skills.Store) {
	t.Helper()
	fake := completion.NewFakeClient().
		When(func(req completion.Request) bool {
			return req.JSON && strings.Contains(req.Messages[len(req.Messages)-1].Content, "define the input parameters")
		}, `{"input_params":[{"name":"topic","type":"string","required":true}],"output_format":{"description":"note"}}`).
		When(func(req completion.Request) bool {
			return !req.JSON && req.Messages[0].Role == completion.RoleUser
		}, "You write notes.").
		When(completion.SystemContains("You write notes."), "a fine note")

	store, err := skills.NewJSONStore(filepath.Join(t.TempDir(), "skills"))
	require.NoError(t, err)

	cfg := config.Config{Temperature: config.Temperatures{SOP: 0.3, Compile: 0.2, Invoke: 0.3}}
	services := session.NewServicesWith(fake, store, cfg, nil)
	return services.NewSession("test"), fake, store
}

func scriptedPresenter(input string) (*presenter.TerminalPresenter, *bytes.Buffer, *bytes.Buffer) {
	var output, errorOutput bytes.Buffer
	return presenter.NewWithOptions(strings.NewReader(input), &output, &errorOutput, presenter.ColorNever), &output, &errorOutput
}

func TestSplitCommand(t *testing.T) {
	cmd, arg := splitCommand("  /SAVE   markdown ")
	assert.Equal(t, "/save", cmd)
	assert.Equal(t, "markdown", arg)

	cmd, arg = splitCommand("confirm")
	assert.Equal(t, "confirm", cmd)
	assert.Empty(t, arg)
}

func TestReadAttachments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# notes"), 0o644))

	atts, err := readAttachments([]string{path})
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "notes.md", atts[0].Name)
	assert.Equal(t, []byte("# notes"), atts[0].Data)

	_, err = readAttachments([]string{filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)
}

func TestForgeLoopConfirmsAndCompiles(t *testing.T) {
	ctx := context.Background()
	sess, fake, store := newTestSession(t)
	fake.Respond(sopJSON(t, "Note v1")).Respond(sopJSON(t, "Note v2"))

	_, err := sess.Synthesize(ctx, "write a note", "short", nil)
	require.NoError(t, err)

	p, output, errorOutput := scriptedPresenter("make it better\ndiff\nundo\nundo\nconfirm\n")
	confirmed, err := runForgeLoop(ctx, p, sess)
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Empty(t, errorOutput.String())

	out := output.String()
	assert.Contains(t, out, "# Note v2")
	assert.Contains(t, out, "+# Note v2")
	assert.Contains(t, out, "undone, 0 more undo(s) available")
	assert.Contains(t, out, "already at earliest version")
	assert.Contains(t, out, `Saved skill "Note v1"`)
	assert.Contains(t, out, "You write notes.")

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Note v1"}, names)
}

func TestForgeLoopQuitsOnEOF(t *testing.T) {
	sess, _, _ := newTestSession(t)
	p, _, errorOutput := scriptedPresenter("confirm\n")

	confirmed, err := runForgeLoop(context.Background(), p, sess)
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Contains(t, errorOutput.String(), "[ERROR] Not allowed now: ")
}

func TestForgeLoopShowsCurrentSOPAfterFailure(t *testing.T) {
	ctx := context.Background()
	sess, fake, _ := newTestSession(t)
	fake.Respond(sopJSON(t, "Note v1"))

	_, err := sess.Synthesize(ctx, "write a note", "short", nil)
	require.NoError(t, err)

	p, output, errorOutput := scriptedPresenter("more detail\n")
	confirmed, err := runForgeLoop(ctx, p, sess)
	require.NoError(t, err)
	assert.False(t, confirmed)

	assert.Contains(t, errorOutput.String(), "[ERROR] Completion service error: ")
	assert.Contains(t, output.String(), "# Note v1")

	current, ok := sess.CurrentSOP()
	require.True(t, ok)
	assert.Equal(t, "Note v1", current.Title)
}

func TestRunChat(t *testing.T) {
	ctx := context.Background()
	sess, fake, _ := newTestSession(t)
	fake.Respond(sopJSON(t, "Note"))
	_, err := sess.Synthesize(ctx, "write a note", "short", nil)
	require.NoError(t, err)
	_, _, err = sess.Compile(ctx)
	require.NoError(t, err)

	dir := t.TempDir()
	ref := filepath.Join(dir, "topic.txt")
	require.NoError(t, os.WriteFile(ref, []byte("otters"), 0o644))

	out := filepath.Join(dir, "out")
	p, output, errorOutput := scriptedPresenter("/attach " + ref + "\nhello\n/history\n/save md\n/clear\n/quit\nignored\n")
	require.NoError(t, runChat(ctx, p, sess, out))
	assert.Empty(t, errorOutput.String())

	text := output.String()
	assert.Contains(t, text, "Attached topic.txt (1 pending)")
	assert.Contains(t, text, "Note> a fine note")
	assert.Contains(t, text, "user> hello")
	assert.Contains(t, text, "Conversation cleared")
	assert.Empty(t, sess.Messages())

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "Note_"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".md"))

	reqs := fake.Requests()
	last := reqs[len(reqs)-1]
	assert.Contains(t, last.Messages[len(last.Messages)-1].Content, "=== topic.txt ===\notters")
}

func TestRunChatWithoutSkill(t *testing.T) {
	sess, _, _ := newTestSession(t)
	p, _, _ := scriptedPresenter("")
	assert.Error(t, runChat(context.Background(), p, sess, t.TempDir()))
}
