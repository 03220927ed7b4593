package chat

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/skillforge/pkg/completion"
	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/telemetry"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
)

// DefaultTemperature is the decoding temperature of skill invocations
const DefaultTemperature = 0.3

// Invoker runs skills against user messages
type Invoker struct {
	client      completion.Client
	temperature float64
	maxMessages int
}

// Option configures an Invoker
type Option func(*Invoker)

// WithTemperature sets the decoding temperature
func WithTemperature(t float64) Option {
	return func(i *Invoker) { i.temperature = t }
}

// WithMaxMessages limits how many prior messages are replayed per request.
// The stored transcript is never truncated.
func WithMaxMessages(n int) Option {
	return func(i *Invoker) { i.maxMessages = n }
}

// NewInvoker creates an Invoker backed by client
func NewInvoker(client completion.Client, opts ...Option) *Invoker {
	i := &Invoker{client: client, temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Request builds the completion request for message without sending it
func (i *Invoker) Request(sk skill.Skill, conv *Conversation, message string) completion.Request {
	history := conv.window(i.maxMessages)
	messages := make([]completion.Message, 0, len(history)+2)
	messages = append(messages, completion.SystemMessage(sk.SystemPrompt))
	messages = append(messages, history...)
	messages = append(messages, completion.UserMessage(message))

	return completion.Request{
		Messages:    messages,
		Temperature: i.temperature,
	}
}

// Invoke sends message to sk and returns the reply. The user message and the
// reply are appended to conv only on success.
func (i *Invoker) Invoke(ctx context.Context, sk skill.Skill, conv *Conversation, message string) (string, error) {
	const op = "skill.invoke"

	if strings.TrimSpace(message) == "" {
		return "", failure.New(failure.KindValidation, op, "message is required")
	}
	if strings.TrimSpace(sk.SystemPrompt) == "" {
		return "", failure.New(failure.KindState, op, "skill has no system prompt")
	}

	var reply string
	err := telemetry.WithSpan(ctx, op, func(ctx context.Context) error {
		req := i.Request(sk, conv, message)
		text, err := completion.CompleteText(ctx, i.client, op, req)
		if err != nil {
			return err
		}

		conv.record(message, text)
		reply = text
		logger.G(ctx).WithField("skill", sk.SkillName).
			WithField("messages", conv.Len()).
			Debug("skill invoked")
		return nil
	}, attribute.String("skill.name", sk.SkillName), attribute.Int("chat.history", conv.Len()))
	return reply, err
}
