package completion

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"
)

// anthropicJSONInstruction is appended to the system prompt because the
// Messages API has no JSON response mode.
const anthropicJSONInstruction = "Respond with a single valid JSON object and nothing else."

// AnthropicOptions configures an Anthropic client
type AnthropicOptions struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// AnthropicClient talks to the Anthropic Messages API
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicClient creates a new Anthropic client. Retries are handled by
// WithRetry so the SDK's own retries are disabled.
func NewAnthropicClient(opts AnthropicOptions) (*AnthropicClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(reqOpts...),
		model:     opts.Model,
		maxTokens: maxTokens,
	}, nil
}

// Name implements Client
func (c *AnthropicClient) Name() string {
	return "anthropic:" + c.model
}

// Complete implements Client
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	var systemParts []string
	var messages []anthropic.MessageParam

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if req.JSON {
		systemParts = append(systemParts, anthropicJSONInstruction)
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if len(systemParts) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(systemParts, "\n\n")},
		}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, errors.Wrap(err, "anthropic message request failed")
	}

	var text strings.Builder
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		}
	}

	return Response{
		Text: text.String(),
		Usage: Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

func isRetryableAnthropicError(err error) (retryable, known bool) {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.StatusCode), true
	}
	return false, false
}
