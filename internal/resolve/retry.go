package resolve

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a transient lookup failure is retried.
type RetryPolicy struct {
	Retries int
	Wait    time.Duration
}

// DefaultRetryPolicy retries a failed lookup once after a short pause.
var DefaultRetryPolicy = RetryPolicy{Retries: 1, Wait: 500 * time.Millisecond}

// lookupFunc is a single remote query run under its own deadline.
type lookupFunc func(ctx context.Context) (string, error)

// retryLookup runs op, retrying transient failures per the resolver's policy.
// Not-found answers are returned immediately. Every attempt is bounded by the
// resolver timeout.
func (r *Resolver) retryLookup(ctx context.Context, what string, op lookupFunc) (string, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.retry.Wait), uint64(max(r.retry.Retries, 0))),
		ctx,
	)

	attempt := 0
	return backoff.RetryNotifyWithData(func() (string, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		out, err := op(actx)
		if err != nil {
			if isDefinitive(err) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return out, nil
	}, policy, func(err error, wait time.Duration) {
		r.logger.Warn("remote lookup failed, retrying",
			"lookup", what,
			"attempt", attempt,
			"backoff", wait,
			"error", err)
	})
}
