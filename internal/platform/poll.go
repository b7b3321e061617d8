package platform

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/maheshrc27/postflow/internal/metrics"
)

const (
	DefaultPollInterval    = 5 * time.Second
	DefaultPollMaxAttempts = 10
)

// PollPolicy is a fixed-interval, bounded retry budget for asynchronous media processing.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: DefaultPollInterval, MaxAttempts: DefaultPollMaxAttempts}
}

func (p PollPolicy) normalize() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPollMaxAttempts
	}
	return p
}

var errNotReady = errors.New("not ready")

// checkFunc reports done=true once processing finished. A returned error stops polling.
type checkFunc func(ctx context.Context) (done bool, err error)

// pollUntilDone waits Interval before every check and gives up after MaxAttempts checks
// with ErrContainerTimeout.
func pollUntilDone(ctx context.Context, platform string, policy PollPolicy, check checkFunc) error {
	policy = policy.normalize()

	attempts := 0
	defer func() { metrics.ObservePollAttempts(platform, attempts) }()

	timer := time.NewTimer(policy.Interval)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		done, err := check(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if !done {
			return struct{}{}, errNotReady
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Interval)),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	if errors.Is(err, errNotReady) {
		return ErrContainerTimeout
	}
	return err
}
