package inference

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds retry configuration for provider requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration

	// Jitter randomizes each interval by +/- this fraction.
	Jitter float64
}

// DefaultRetryConfig returns the retry defaults for provider requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
		Jitter:            0.25,
	}
}

type retrying struct {
	Provider
	cfg RetryConfig
}

// WithRetry wraps p so retryable failures (429, 5xx, transport
// errors) are retried with exponential backoff and jitter. Other
// failures return immediately.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	if cfg.MaxAttempts <= 1 {
		return p
	}
	return &retrying{Provider: p, cfg: cfg}
}

func (r *retrying) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.BackoffBase
	b.Multiplier = r.cfg.BackoffMultiplier
	b.MaxInterval = r.cfg.MaxBackoff
	b.RandomizationFactor = r.cfg.Jitter
	b.MaxElapsedTime = 0
	return backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx,
	)
}

func (r *retrying) Generate(
	ctx context.Context,
	req Request,
) (Response, error) {
	var resp Response
	op := func() error {
		var err error
		resp, err = r.Provider.Generate(ctx, req)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, r.policy(ctx)); err != nil {
		if ctx.Err() != nil {
			return Response{}, NewError(r.Name(), KindCancelled, 0, ctx.Err())
		}
		return Response{}, err
	}
	return resp, nil
}
