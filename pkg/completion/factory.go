package completion

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/config"
)

// New creates the client selected by cfg.Provider, wrapped with retries
func New(ctx context.Context, cfg config.Config) (Client, error) {
	var (
		client Client
		err    error
	)

	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		client, err = NewOpenAIClient(OpenAIOptions{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case config.ProviderAnthropic:
		client, err = NewAnthropicClient(AnthropicOptions{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case config.ProviderGoogle:
		client, err = NewGoogleClient(ctx, GoogleOptions{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	default:
		return nil, errors.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return WithRetry(client, cfg.Retry), nil
}
