// Package retry runs calls to external backends with a per-attempt timeout
// and bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how a call is retried.
type Policy struct {
	// Attempts is the maximum number of calls, including the first.
	// Defaults to 3 if zero.
	Attempts int

	// Initial is the delay before the second attempt. Defaults to 200ms.
	Initial time.Duration

	// Max caps the delay between attempts. Defaults to 2s.
	Max time.Duration

	// CallTimeout bounds each attempt. Zero means the caller's context only.
	CallTimeout time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Initial: 200 * time.Millisecond, Max: 2 * time.Second}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.Initial <= 0 {
		p.Initial = d.Initial
	}
	if p.Max <= 0 {
		p.Max = d.Max
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	return p
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a Permanent error, the attempts are
// exhausted, or ctx is done. It returns the number of attempts made and the
// last error, unwrapped from any Permanent marker.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) (int, error) {
	p = p.withDefaults()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(p.Attempts-1))
	b = backoff.WithContext(b, ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		callCtx := ctx
		if p.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
			defer cancel()
		}
		err := op(callCtx)
		if err != nil && ctx.Err() != nil {
			// The caller gave up; stop without further attempts.
			return backoff.Permanent(err)
		}
		return err
	}, b)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return attempts, err
}
