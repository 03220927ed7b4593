package completion

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// GoogleOptions configures a Gemini client
type GoogleOptions struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// GoogleClient talks to the Gemini API through the genai SDK
type GoogleClient struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// NewGoogleClient creates a new Gemini client
func NewGoogleClient(ctx context.Context, opts GoogleOptions) (*GoogleClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Google GenAI client")
	}

	return &GoogleClient{
		client:    client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}, nil
}

// Name implements Client
func (c *GoogleClient) Name() string {
	return "google:" + c.model
}

// Complete implements Client
func (c *GoogleClient) Complete(ctx context.Context, req Request) (Response, error) {
	var systemParts []*genai.Part
	var contents []*genai.Content

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, &genai.Part{Text: msg.Content})
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if len(systemParts) > 0 {
		config.SystemInstruction = &genai.Content{Parts: systemParts}
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return Response{}, errors.Wrap(err, "gemini generate content failed")
	}
	if len(resp.Candidates) == 0 {
		return Response{}, errors.New("gemini returned no candidates")
	}

	out := Response{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func isRetryableGoogleError(err error) (retryable, known bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.Code), true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return isRetryableStatus(apiErrPtr.Code), true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"resource exhausted", "unavailable", "deadline exceeded"} {
		if strings.Contains(msg, pattern) {
			return true, true
		}
	}
	return false, false
}
