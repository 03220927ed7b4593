package session

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillforge/pkg/completion"
	"github.com/jingkaihe/skillforge/pkg/config"
	"github.com/jingkaihe/skillforge/pkg/export"
	"github.com/jingkaihe/skillforge/pkg/ingest"
	"github.com/jingkaihe/skillforge/pkg/skills"
	sopengine "github.com/jingkaihe/skillforge/pkg/sop"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

var testConfig = config.Config{
	Temperature: config.Temperatures{SOP: 0.3, Compile: 0.2, Invoke: 0.3},
}

func makeSOP(title string) sop.SOP {
	return sop.SOP{
		Title:     title,
		Objective: "objective of " + title,
		Steps: []sop.Step{{
			StepNumber: 1, Title: "draft", Description: "write it",
			Input: "task", Output: "draft", AcceptanceCriteria: "complete",
		}},
		QualityChecklist: []string{"proofread"},
		FinalDeliverable: "a document",
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func isSchemaRequest(req completion.Request) bool {
	return req.JSON && strings.Contains(req.Messages[len(req.Messages)-1].Content, "define the input parameters")
}

func isInstructionRequest(req completion.Request) bool {
	return !req.JSON && req.Messages[0].Role == completion.RoleUser
}

// scriptedClient answers compile derivations and skill invocations by rule
// and SOP requests from the queue.
func scriptedClient() *completion.FakeClient {
	return completion.NewFakeClient().
		When(isSchemaRequest, `{"input_params":[{"name":"topic","type":"string","required":true}],"output_format":{"description":"note"}}`).
		When(isInstructionRequest, "You write notes.").
		When(completion.SystemContains("You write notes."), "here is your note")
}

func newTestSession(t *testing.T, client completion.Client) (*Session, skills.Store) {
	t.Helper()
	store, err := skills.NewJSONStore(filepath.Join(t.TempDir(), "skills"))
	require.NoError(t, err)
	services := NewServicesWith(client, store, testConfig, nil)
	return services.NewSession("test"), store
}

func TestSessionWorkflow(t *testing.T) {
	ctx := context.Background()
	fake := scriptedClient().
		Respond(mustJSON(t, makeSOP("v1"))).
		Respond(mustJSON(t, makeSOP("v2")))
	s, store := newTestSession(t, fake)

	first, err := s.Synthesize(ctx, "write a note", "one page", []ingest.Attachment{{Name: "ref.txt", Data: []byte("reference body")}})
	require.NoError(t, err)
	assert.Equal(t, "v1", first.Title)
	assert.Contains(t, fake.Requests()[0].Messages[0].Content, "=== ref.txt ===\nreference body")

	_, err = s.Revise(ctx, "more detail")
	require.NoError(t, err)
	assert.Contains(t, s.Diff(), "+# v2")

	snap := s.Snapshot()
	assert.Equal(t, "test", snap.ID)
	assert.Equal(t, 2, snap.Version)
	assert.Equal(t, 1, snap.UndoDepth)
	require.NotNil(t, snap.SOP)
	assert.Equal(t, "v2", snap.SOP.Title)

	sk, location, err := s.Compile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", sk.SkillName)
	assert.Equal(t, "You write notes.", sk.SystemPrompt)
	assert.NotEmpty(t, location)

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)

	active, ok := s.ActiveSkill()
	require.True(t, ok)
	assert.Equal(t, "v2", active.SkillName)

	reply, err := s.Invoke(ctx, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "here is your note", reply)
	assert.Len(t, s.Messages(), 2)
	assert.Equal(t, "v2", s.Snapshot().ActiveSkill)

	doc, err := s.Export(ctx, export.FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "here is your note", string(doc.Data))
	assert.True(t, strings.HasPrefix(doc.Filename, "v2_"))

	s.ClearConversation()
	assert.Empty(t, s.Messages())
	_, ok = s.ActiveSkill()
	assert.True(t, ok, "clearing the conversation keeps the skill")
}

func TestCompileWithoutSOP(t *testing.T) {
	fake := scriptedClient()
	s, _ := newTestSession(t, fake)

	_, _, err := s.Compile(context.Background())
	assert.True(t, failure.Is(err, failure.KindState))
	assert.Empty(t, fake.Requests())
}

func TestInvokeWithoutActiveSkill(t *testing.T) {
	fake := scriptedClient()
	s, _ := newTestSession(t, fake)

	_, err := s.Invoke(context.Background(), "hello", nil)
	assert.True(t, failure.Is(err, failure.KindState))
	assert.Empty(t, fake.Requests())

	_, err = s.Export(context.Background(), export.FormatText)
	assert.True(t, failure.Is(err, failure.KindState))
}

func TestCompileResetsConversation(t *testing.T) {
	ctx := context.Background()
	fake := scriptedClient().Respond(mustJSON(t, makeSOP("note")))
	s, _ := newTestSession(t, fake)

	_, err := s.Synthesize(ctx, "task", "deliverable", nil)
	require.NoError(t, err)
	_, _, err = s.Compile(ctx)
	require.NoError(t, err)
	_, err = s.Invoke(ctx, "hi", nil)
	require.NoError(t, err)
	require.Len(t, s.Messages(), 2)

	_, _, err = s.Compile(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.Messages())
}

type failingStore struct {
	skills.Store
}

func (failingStore) Save(context.Context, skill.Skill) (string, error) {
	return "", errors.New("disk full")
}

func TestCompileSaveFailureKeepsActiveSkill(t *testing.T) {
	ctx := context.Background()
	fake := scriptedClient().
		Respond(mustJSON(t, makeSOP("first"))).
		Respond(mustJSON(t, makeSOP("second")))
	s, store := newTestSession(t, fake)

	_, err := s.Synthesize(ctx, "task", "deliverable", nil)
	require.NoError(t, err)
	_, _, err = s.Compile(ctx)
	require.NoError(t, err)
	_, err = s.Invoke(ctx, "hi", nil)
	require.NoError(t, err)

	s.store = failingStore{Store: store}
	_, err = s.Synthesize(ctx, "task", "deliverable", nil)
	require.NoError(t, err)

	_, _, err = s.Compile(ctx)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindPersistence))
	assert.Contains(t, err.Error(), "disk full")

	active, ok := s.ActiveSkill()
	require.True(t, ok)
	assert.Equal(t, "first", active.SkillName)
	assert.Len(t, s.Messages(), 2)
}

func TestCompileSchemaFailureKeepsPreviousSkill(t *testing.T) {
	ctx := context.Background()
	failSchema := false
	fake := completion.NewFakeClient().
		WhenFail(func(req completion.Request) bool {
			return failSchema && isSchemaRequest(req)
		}, errors.New("upstream unavailable")).
		When(isSchemaRequest, `{"input_params":[{"name":"topic","type":"string","required":true}],"output_format":{"description":"note"}}`).
		When(isInstructionRequest, "You write notes.").
		When(completion.SystemContains("You write notes."), "here is your note").
		Respond(mustJSON(t, makeSOP("first"))).
		Respond(mustJSON(t, makeSOP("second")))
	s, store := newTestSession(t, fake)

	_, err := s.Synthesize(ctx, "task", "deliverable", nil)
	require.NoError(t, err)
	_, _, err = s.Compile(ctx)
	require.NoError(t, err)
	_, err = s.Invoke(ctx, "hi", nil)
	require.NoError(t, err)
	before := s.Messages()
	require.Len(t, before, 2)

	_, err = s.Synthesize(ctx, "task", "deliverable", nil)
	require.NoError(t, err)

	failSchema = true
	_, _, err = s.Compile(ctx)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindService))

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, names)

	active, ok := s.ActiveSkill()
	require.True(t, ok)
	assert.Equal(t, "first", active.SkillName)
	assert.Equal(t, before, s.Messages())
}

func TestLoadSkill(t *testing.T) {
	ctx := context.Background()
	fake := scriptedClient().Respond(mustJSON(t, makeSOP("stored skill")))
	s, _ := newTestSession(t, fake)

	_, err := s.Synthesize(ctx, "task", "deliverable", nil)
	require.NoError(t, err)
	_, _, err = s.Compile(ctx)
	require.NoError(t, err)
	_, err = s.Invoke(ctx, "hi", nil)
	require.NoError(t, err)

	sk, err := s.LoadSkill(ctx, "stored skill")
	require.NoError(t, err)
	assert.Equal(t, "stored skill", sk.SkillName)
	assert.Empty(t, s.Messages())

	_, err = s.LoadSkill(ctx, "missing")
	assert.True(t, errors.Is(err, skills.ErrNotFound))
}

func TestUndoThroughSession(t *testing.T) {
	ctx := context.Background()
	fake := scriptedClient().
		Respond(mustJSON(t, makeSOP("v1"))).
		Respond(mustJSON(t, makeSOP("v2")))
	s, _ := newTestSession(t, fake)

	_, err := s.Undo()
	assert.True(t, failure.Is(err, failure.KindState))

	_, err = s.Synthesize(ctx, "task", "deliverable", nil)
	require.NoError(t, err)
	_, err = s.Revise(ctx, "change")
	require.NoError(t, err)

	res, err := s.Undo()
	require.NoError(t, err)
	assert.Equal(t, sopengine.UndoApplied, res.Status)
	current, ok := s.CurrentSOP()
	require.True(t, ok)
	assert.Equal(t, "v1", current.Title)
	assert.Empty(t, s.Diff())

	res, err = s.Undo()
	require.NoError(t, err)
	assert.Equal(t, sopengine.UndoAtEarliest, res.Status)
}

func TestManager(t *testing.T) {
	store, err := skills.NewJSONStore(filepath.Join(t.TempDir(), "skills"))
	require.NoError(t, err)
	m, err := NewManager(NewServicesWith(scriptedClient(), store, testConfig, nil), 2)
	require.NoError(t, err)

	a := m.Create()
	b := m.Create()
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, m.Len())

	got, ok := m.Get(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)

	c := m.Create()
	_, ok = m.Get(b.ID())
	assert.False(t, ok, "least recently used session is evicted")
	_, ok = m.Get(c.ID())
	assert.True(t, ok)

	err = m.With(b.ID(), func(*Session) error { return nil })
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, failure.Is(err, failure.KindState))

	assert.True(t, m.Delete(a.ID()))
	assert.False(t, m.Delete(a.ID()))
}

func TestManagerSerialisesPerSession(t *testing.T) {
	store, err := skills.NewJSONStore(filepath.Join(t.TempDir(), "skills"))
	require.NoError(t, err)
	m, err := NewManager(NewServicesWith(scriptedClient(), store, testConfig, nil), 0)
	require.NoError(t, err)
	s := m.Create()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.With(s.ID(), func(*Session) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)

	err = m.With(s.ID(), func(*Session) error { return fmt.Errorf("boom") })
	assert.EqualError(t, err, "boom")
}
