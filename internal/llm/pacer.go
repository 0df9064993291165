package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const maxBackoff = 12 * time.Second

// Pacer enforces a minimum interval between upstream calls and retries
// transient failures with jittered exponential backoff. All provider
// adapters share one Pacer so the request rate is bounded process-wide.
type Pacer struct {
	limiter     *rate.Limiter
	maxAttempts int
	base        time.Duration
}

// NewPacer builds a pacer allowing at most maxQPS requests per second
// (<=0 disables throttling) and maxAttempts tries per call.
func NewPacer(maxQPS float64, maxAttempts int, base time.Duration) *Pacer {
	var limiter *rate.Limiter
	if maxQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxQPS), 1)
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if base <= 0 {
		base = time.Second
	}
	return &Pacer{limiter: limiter, maxAttempts: maxAttempts, base: base}
}

// Wait blocks until the throttle admits one call. Streaming generations
// use this directly: the stream counts against the rate limit but is not
// retried, since fragments already emitted cannot be taken back.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// Do runs op, waiting for the throttle before each attempt. Transient
// errors are retried until the attempt budget runs out, then surfaced as
// ErrUnavailable. Other errors abort immediately.
func (p *Pacer) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.base
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0

	attempt := func() error {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		err := op()
		if err == nil || IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.maxAttempts-1)), ctx))
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
