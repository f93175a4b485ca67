package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

const defaultInterval = time.Second

var errNotMet = errors.New("condition not met")

// Condition reports whether the awaited state has been reached.
// A returned error is treated as "not yet" and retried.
type Condition func(ctx context.Context) (bool, error)

// Bail is evaluated after every unmet condition. A non-nil error ends the wait immediately.
type Bail func(ctx context.Context) error

type options struct {
	name        string
	interval    time.Duration
	exponential bool
	bail        Bail
}

type Option func(*options)

// WithName names the condition in timeout errors.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithExponentialBackoff grows the poll interval starting from the configured interval.
func WithExponentialBackoff() Option {
	return func(o *options) { o.exponential = true }
}

func WithBail(b Bail) Option {
	return func(o *options) { o.bail = b }
}

// ForCondition polls cond until it is true, the bail condition fires or the timeout elapses.
func ForCondition(ctx context.Context, timeout time.Duration, cond Condition, opts ...Option) error {
	o := options{interval: defaultInterval}
	for _, opt := range opts {
		opt(&o)
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(o.interval)
	if o.exponential {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = o.interval
		eb.MaxInterval = 10 * o.interval
		b = eb
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		ok, err := cond(ctx)
		if ok && err == nil {
			return struct{}{}, nil
		}
		lastErr = err
		if o.bail != nil {
			if bailErr := o.bail(ctx); bailErr != nil {
				return struct{}{}, backoff.Permanent(bailErr)
			}
		}
		return struct{}{}, errNotMet
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(timeout))
	if err == nil {
		return nil
	}

	if errors.Is(err, errNotMet) || errors.Is(err, context.DeadlineExceeded) {
		timeoutErr := srvErrors.NewConditionTimeoutError(o.name, timeout)
		if lastErr != nil {
			return fmt.Errorf("%w: last error: %v", timeoutErr, lastErr)
		}
		return timeoutErr
	}
	return err
}
