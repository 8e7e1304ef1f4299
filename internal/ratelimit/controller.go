// Package ratelimit classifies remote responses and computes backoff delays.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runoshun/gastown/internal/domain"
)

// Outcome classifies the result of a remote call.
type Outcome int

const (
	// Success means the call returned normally.
	Success Outcome = iota
	// Throttled means the service declared a rate limit; retry after a delay.
	Throttled
	// Failure means any other error.
	Failure
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Throttled:
		return "throttled"
	case Failure:
		return "failure"
	}
	return "unknown"
}

// Policy configures the controller.
// Fields are ordered to minimize memory padding.
type Policy struct {
	Mode        domain.BackoffMode
	Base        time.Duration // rate_limit_backoff
	Max         time.Duration // Cap for exponential mode
	MaxAttempts int           // submit_retries; retries after the first attempt
}

// PolicyFromConfig builds a policy from workspace configuration.
func PolicyFromConfig(cfg *domain.Config) Policy {
	return Policy{
		Mode:        cfg.Backoff.Mode,
		Base:        cfg.RateLimitBackoff,
		Max:         cfg.Backoff.Max,
		MaxAttempts: cfg.SubmitRetries,
	}
}

// Controller decides whether a failed call was throttled and how long to wait.
// It holds no per-job state; callers track attempt counts.
type Controller struct {
	policy Policy
}

// New creates a controller for the policy.
func New(policy Policy) *Controller {
	return &Controller{policy: policy}
}

// Policy returns the controller's policy.
func (c *Controller) Policy() Policy {
	return c.policy
}

// Classify classifies the error of a submit or cancel call.
// Only a response that declares RATE_LIMITED is throttling. Transport errors,
// timeouts and unparseable output are failures.
func (c *Controller) Classify(err error) Outcome {
	if err == nil {
		return Success
	}
	// *domain.RemoteError matches ErrRateLimited only for a declared RATE_LIMITED status
	if errors.Is(err, domain.ErrRateLimited) {
		return Throttled
	}
	return Failure
}

// ClassifyPoll classifies a poll result. A declared RATE_LIMITED state is
// throttling even when the call itself succeeded.
func (c *Controller) ClassifyPoll(status domain.PollStatus, err error) Outcome {
	if err != nil {
		return c.Classify(err)
	}
	if status.State == domain.RemoteRateLimited {
		return Throttled
	}
	return Success
}

// Delay returns the wait before the given throttled attempt (1-based).
// Fixed mode always waits Base; exponential mode doubles per attempt up to Max.
func (c *Controller) Delay(attempt int) time.Duration {
	base := c.policy.Base
	if base <= 0 {
		base = domain.DefaultRateLimitBackoff
	}
	if c.policy.Mode != domain.BackoffExponential || attempt <= 1 {
		return base
	}

	limit := c.policy.Max
	if limit <= 0 {
		limit = domain.DefaultMaxBackoff
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return d
}

// Exhausted reports whether retryCount is past the submission ceiling.
func (c *Controller) Exhausted(retryCount int) bool {
	return retryCount > c.policy.MaxAttempts
}

// Wait blocks for Delay(attempt) or until ctx is done.
func (c *Controller) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Submit submits req with bounded retry on declared throttling.
// It is used by one-shot callers; the mayor schedules retries itself.
// After MaxAttempts throttled retries the error wraps ErrRetryExhausted.
func (c *Controller) Submit(ctx context.Context, remote domain.RemoteService, req domain.SubmitRequest, onRetry func(attempt int, delay time.Duration)) (string, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, c.Delay(attempt))
			}
			if err := c.Wait(ctx, attempt); err != nil {
				return "", err
			}
		}

		handle, err := remote.Submit(ctx, req)
		switch c.Classify(err) {
		case Success:
			return handle, nil
		case Throttled:
			if c.Exhausted(attempt + 1) {
				return "", fmt.Errorf("%w after %d attempts: %w", domain.ErrRetryExhausted, attempt+1, err)
			}
		default:
			return "", err
		}
	}
}
