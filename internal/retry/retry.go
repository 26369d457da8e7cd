// Package retry factors out the retry-with-exponential-backoff abstraction:
// the API client (component A) and the geocoder (component D) each apply
// the same {max_attempts, base_delay, max_delay, retryable_predicate}
// policy rather than reimplementing backoff separately. The PDF extractor
// (component B) does not use it; its downloads are not retried.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is a retry configuration shared by the API client and the
// geocoder.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether err should be retried. A nil Retryable
	// retries every non-nil error.
	Retryable func(err error) bool
}

// permanentError marks an error as non-retryable without losing its cause.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Do runs fn, retrying according to Policy until it succeeds, the policy's
// Retryable predicate rejects an error, or MaxAttempts is exhausted.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0 // bounded by MaxAttempts instead of wall-clock time

	attempts := 0
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		if attempts >= p.MaxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if ok := asPermanent(err, &perm); ok {
		return perm.Err
	}
	return err
}

func asPermanent(err error, target **backoff.PermanentError) bool {
	pe, ok := err.(*backoff.PermanentError)
	if !ok {
		return false
	}
	*target = pe
	return true
}
