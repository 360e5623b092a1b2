package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oshokin/release-mirror/internal/logger"
)

// MinRateLimitWait is the shortest wait after a rate-limit response, applied when
// the reported reset has already passed.
const MinRateLimitWait = time.Second

// RateLimitError signals that the upstream refused the call until Reset.
type RateLimitError struct {
	// Reset is the instant the rate-limit window reopens.
	Reset time.Time
	// Status is the HTTP status that carried the limit.
	Status int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (status %d), resets at %s", e.Status, e.Reset.UTC().Format(time.RFC3339))
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Operation is a single attempt of an upstream call.
type Operation func(ctx context.Context) error

// Stats counts what the policy did. Rate-limit waits never count as retries.
type Stats struct {
	Retries        atomic.Int64
	RateLimitWaits atomic.Int64
}

// Policy retries transient failures and waits out rate limits.
type Policy struct {
	// MaxRetries bounds retries of transient failures.
	MaxRetries int
	// BaseDelay is the first backoff delay; each retry doubles it.
	BaseDelay time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Sleep waits for d or until ctx is done. Defaults to a timer-based sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	stats Stats
}

// NewPolicy creates a Policy with the given bounds.
func NewPolicy(maxRetries int, baseDelay time.Duration) *Policy {
	return &Policy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
	}
}

// Stats exposes the counters of the policy.
func (p *Policy) Stats() *Stats {
	return &p.stats
}

// Do runs op until it succeeds, fails permanently, exhausts the retry bound or ctx ends.
func (p *Policy) Do(ctx context.Context, op Operation) error {
	b := p.newBackOff()

	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(err, ctxErr)
		}

		var rateLimited *RateLimitError
		if errors.As(err, &rateLimited) {
			if err = p.waitForReset(ctx, rateLimited); err != nil {
				return err
			}

			continue
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return err
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("giving up after %d retries: %w", p.MaxRetries, err)
		}

		p.stats.Retries.Add(1)
		logger.WarnKV(ctx, "Upstream call failed, retrying", "error", err, "delay", delay)

		if err = p.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// waitForReset sleeps until the rate-limit window reopens.
func (p *Policy) waitForReset(ctx context.Context, rateLimited *RateLimitError) error {
	p.stats.RateLimitWaits.Add(1)

	wait := max(rateLimited.Reset.Sub(p.now()), MinRateLimitWait)

	logger.InfoKV(ctx, "Rate limit exceeded, waiting for reset",
		"reset", rateLimited.Reset.UTC().Format(time.RFC3339), "wait", wait)

	return p.sleep(ctx, wait)
}

func (p *Policy) newBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = p.BaseDelay << max(p.MaxRetries, 0)
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := max(p.MaxRetries, 0)

	return backoff.WithMaxRetries(exp, uint64(retries))
}

func (p *Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}

	return time.Now()
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
