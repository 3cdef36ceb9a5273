package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy is a stateless exponential-backoff policy applied around
// idempotent operations.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Base is the initial backoff delay.
	Base time.Duration
	// Factor multiplies the delay after each attempt.
	Factor float64
	// Cap bounds the delay.
	Cap time.Duration
	// JitterFrac adds ±JitterFrac of the delay as random jitter.
	JitterFrac float64
	// Retryable decides whether an error is worth retrying. Nil retries all.
	Retryable func(error) bool
}

// DefaultFetchPolicy matches the ingestion fetch stage contract.
func DefaultFetchPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		Base:       time.Second,
		Factor:     2.0,
		Cap:        30 * time.Second,
		JitterFrac: 0.2,
	}
}

// Do runs f under the policy, sleeping between attempts. Non-retryable
// errors and context cancellation short-circuit immediately.
func (p RetryPolicy) Do(ctx context.Context, f func(context.Context) error) error {
	attempts := 1 + p.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := p.Base
	for attempt := 0; attempt < attempts; attempt++ {
		err = f(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		sleep := delay
		if p.JitterFrac > 0 {
			spread := 1 + p.JitterFrac*(2*rand.Float64()-1)
			sleep = time.Duration(float64(delay) * spread)
		}
		if p.Cap > 0 && sleep > p.Cap {
			sleep = p.Cap
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * p.Factor)
		if p.Cap > 0 && delay > p.Cap {
			delay = p.Cap
		}
	}
	return err
}
