// Package completion is the provider-agnostic text completion client used by
// every skillforge operation. A request is a list of role-tagged messages and
// an optional flag asking the service to constrain its output to JSON.
package completion

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a role-tagged piece of conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion request
type Request struct {
	Messages    []Message
	JSON        bool    // ask the service to return a single JSON document
	Temperature float64 // decoding temperature
	Model       string  // overrides the client's default model when set
	MaxTokens   int     // overrides the client's default when positive
}

// Usage reports token consumption of a completion
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the generated text of a completion
type Response struct {
	Text  string
	Usage Usage
}

// Client sends completion requests to a text generation service
type Client interface {
	// Complete runs one request and blocks until the service answers or fails
	Complete(ctx context.Context, req Request) (Response, error)
	// Name identifies the provider and model for logging
	Name() string
}

// SystemMessage builds a system message
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// CompleteText runs req and returns its text. Service failures are labeled
// KindService.
func CompleteText(ctx context.Context, c Client, op string, req Request) (string, error) {
	logger.G(ctx).WithField("provider", c.Name()).
		WithField("json", req.JSON).
		WithField("messages", len(req.Messages)).
		Debug("sending completion request")

	resp, err := c.Complete(ctx, req)
	if err != nil {
		return "", failure.Wrap(failure.KindService, op, err, "completion request failed")
	}
	return resp.Text, nil
}

// CompleteJSON runs req with JSON output enabled and decodes the reply into v.
// Service failures are labeled KindService; empty or undecodable replies are
// labeled KindFormat.
func CompleteJSON(ctx context.Context, c Client, op string, req Request, v any) error {
	req.JSON = true
	text, err := CompleteText(ctx, c, op, req)
	if err != nil {
		return err
	}

	payload := StripCodeFence(text)
	if payload == "" {
		return failure.New(failure.KindFormat, op, "completion returned an empty response")
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return failure.Wrap(failure.KindFormat, op, err, "completion response is not valid JSON")
	}
	return nil
}

// StripCodeFence removes a surrounding Markdown code fence such as ```json
// ... ``` that some models add even in JSON mode.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		trimmed = ""
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
