package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillforge/pkg/completion"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
)

var reportSkill = skill.Skill{SkillName: "Weekly report", SystemPrompt: "You write weekly reports."}

func TestInvokeFreshConversation(t *testing.T) {
	fake := completion.NewFakeClient().Respond("Hi! Send me your notes.")
	conv := NewConversation()

	reply, err := NewInvoker(fake).Invoke(context.Background(), reportSkill, conv, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi! Send me your notes.", reply)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []completion.Message{
		completion.SystemMessage("You write weekly reports."),
		completion.UserMessage("hello"),
	}, reqs[0].Messages)
	assert.False(t, reqs[0].JSON)
	assert.Equal(t, DefaultTemperature, reqs[0].Temperature)

	assert.Equal(t, 2, conv.Len())
	last, ok := conv.LastReply()
	require.True(t, ok)
	assert.Equal(t, "Hi! Send me your notes.", last)
}

func TestInvokeReplaysTranscript(t *testing.T) {
	fake := completion.NewFakeClient().Respond("one").Respond("two")
	conv := NewConversation()
	inv := NewInvoker(fake)
	ctx := context.Background()

	_, err := inv.Invoke(ctx, reportSkill, conv, "first")
	require.NoError(t, err)
	_, err = inv.Invoke(ctx, reportSkill, conv, "second")
	require.NoError(t, err)

	msgs := fake.Requests()[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, completion.RoleSystem, msgs[0].Role)
	assert.Equal(t, completion.UserMessage("first"), msgs[1])
	assert.Equal(t, completion.AssistantMessage("one"), msgs[2])
	assert.Equal(t, completion.UserMessage("second"), msgs[3])
	assert.Equal(t, 4, conv.Len())
}

func TestInvokeFailureLeavesConversationUntouched(t *testing.T) {
	fake := completion.NewFakeClient().Respond("one").Fail(errors.New("service unavailable"))
	conv := NewConversation()
	inv := NewInvoker(fake)
	ctx := context.Background()

	_, err := inv.Invoke(ctx, reportSkill, conv, "first")
	require.NoError(t, err)
	before := conv.Messages()

	_, err = inv.Invoke(ctx, reportSkill, conv, "second")
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindService))
	assert.Equal(t, before, conv.Messages())
}

func TestInvokeValidation(t *testing.T) {
	fake := completion.NewFakeClient()
	inv := NewInvoker(fake)

	_, err := inv.Invoke(context.Background(), reportSkill, NewConversation(), "  ")
	assert.True(t, failure.Is(err, failure.KindValidation))

	_, err = inv.Invoke(context.Background(), skill.Skill{SkillName: "x"}, NewConversation(), "hi")
	assert.True(t, failure.Is(err, failure.KindState))
	assert.Empty(t, fake.Requests())
}

func TestMaxMessagesWindow(t *testing.T) {
	fake := completion.NewFakeClient()
	for i := 0; i < 4; i++ {
		fake.Respond(fmt.Sprintf("reply %d", i))
	}
	conv := NewConversation()
	inv := NewInvoker(fake, WithMaxMessages(3), WithTemperature(0.7))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := inv.Invoke(ctx, reportSkill, conv, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	last := fake.Requests()[3]
	assert.Equal(t, 0.7, last.Temperature)
	// 6 prior messages, window of 3 trimmed to start at a user turn
	assert.Equal(t, []completion.Message{
		completion.SystemMessage(reportSkill.SystemPrompt),
		completion.UserMessage("msg 2"),
		completion.AssistantMessage("reply 2"),
		completion.UserMessage("msg 3"),
	}, last.Messages)
	assert.Equal(t, 8, conv.Len(), "stored transcript is never truncated")
}

func TestConversationClear(t *testing.T) {
	conv := NewConversation()
	conv.record("a", "b")
	msgs := conv.Messages()
	msgs[0].Content = "mutated"
	assert.Equal(t, "a", conv.Messages()[0].Content)

	conv.Clear()
	assert.Zero(t, conv.Len())
	_, ok := conv.LastReply()
	assert.False(t, ok)
}
