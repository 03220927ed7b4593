package completion

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures an OpenAI-compatible client
type OpenAIOptions struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// DeepSeek by default.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIClient creates a new OpenAI-compatible client
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("OpenAI-compatible API key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}

	clientConfig := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}, nil
}

// Name implements Client
func (c *OpenAIClient) Name() string {
	return "openai:" + c.model
}

// Complete implements Client
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		oaiMsg := openai.ChatCompletionMessage{Content: msg.Content}
		switch msg.Role {
		case RoleSystem:
			oaiMsg.Role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			oaiMsg.Role = openai.ChatMessageRoleAssistant
		default:
			oaiMsg.Role = openai.ChatMessageRoleUser
		}
		messages = append(messages, oaiMsg)
	}

	params := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.Model != "" {
		params.Model = req.Model
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	} else if c.maxTokens > 0 {
		params.MaxTokens = c.maxTokens
	}
	if req.JSON {
		params.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return Response{}, errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("chat completion returned no choices")
	}

	return Response{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func isRetryableOpenAIError(err error) (retryable, known bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.HTTPStatusCode), true
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || isRetryableStatus(reqErr.HTTPStatusCode), true
	}

	return false, false
}
