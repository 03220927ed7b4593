package completion

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/config"
	"github.com/jingkaihe/skillforge/pkg/logger"
)

type retryClient struct {
	inner  Client
	config config.RetryConfig
}

// WithRetry wraps c so transient failures (rate limits, 5xx, dropped
// connections) are retried with the configured backoff. A config with zero
// attempts returns c unchanged.
func WithRetry(c Client, cfg config.RetryConfig) Client {
	if cfg.Attempts <= 1 {
		return c
	}
	return &retryClient{inner: c, config: cfg}
}

func (r *retryClient) Name() string {
	return r.inner.Name()
}

func (r *retryClient) Complete(ctx context.Context, req Request) (Response, error) {
	initialDelay := time.Duration(r.config.InitialDelay) * time.Millisecond
	maxDelay := time.Duration(r.config.MaxDelay) * time.Millisecond

	var delayType retry.DelayTypeFunc
	switch r.config.BackoffType {
	case "fixed":
		delayType = retry.FixedDelay
	case "exponential":
		fallthrough
	default:
		delayType = retry.BackOffDelay
	}

	var resp Response
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			var err error
			resp, err = r.inner.Complete(ctx, req)
			return err
		},
		retry.RetryIf(isRetryableError),
		retry.Attempts(uint(r.config.Attempts)),
		retry.Delay(initialDelay),
		retry.DelayType(delayType),
		retry.MaxDelay(maxDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).
				WithField("provider", r.inner.Name()).
				WithField("attempt", n+1).
				WithField("max_attempts", r.config.Attempts).
				Warn("retrying completion request")
		}),
	)
	if err != nil {
		if attempts > 1 {
			return Response{}, errors.Wrapf(err, "all %d retry attempts failed", attempts)
		}
		return Response{}, err
	}
	return resp, nil
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	for _, check := range []func(error) (bool, bool){
		isRetryableOpenAIError,
		isRetryableAnthropicError,
		isRetryableGoogleError,
	} {
		if retryable, known := check(err); known {
			return retryable
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"rate limit",
		"too many requests",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
