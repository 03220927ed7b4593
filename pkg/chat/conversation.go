// Package chat invokes compiled skills: the skill's system prompt leads every
// request, followed by the conversation so far and the new user message.
package chat

import "github.com/jingkaihe/skillforge/pkg/completion"

// Conversation is the user/assistant transcript of one active skill. Turns
// are only recorded after a successful invocation.
type Conversation struct {
	messages []completion.Message
}

// NewConversation creates an empty conversation
func NewConversation() *Conversation {
	return &Conversation{}
}

// Messages returns a copy of the transcript
func (c *Conversation) Messages() []completion.Message {
	out := make([]completion.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of recorded messages
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Clear discards the transcript
func (c *Conversation) Clear() {
	c.messages = nil
}

// LastReply returns the most recent assistant message
func (c *Conversation) LastReply() (string, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == completion.RoleAssistant {
			return c.messages[i].Content, true
		}
	}
	return "", false
}

func (c *Conversation) record(user, assistant string) {
	c.messages = append(c.messages,
		completion.UserMessage(user),
		completion.AssistantMessage(assistant),
	)
}

// window returns the most recent max messages, starting at a user turn.
// max <= 0 returns the whole transcript.
func (c *Conversation) window(max int) []completion.Message {
	msgs := c.messages
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
		for len(msgs) > 0 && msgs[0].Role != completion.RoleUser {
			msgs = msgs[1:]
		}
	}
	out := make([]completion.Message, len(msgs))
	copy(out, msgs)
	return out
}
