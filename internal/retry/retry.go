// Package retry runs a call with bounded exponential backoff on transient errors.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Options controls the attempt bound and delay schedule.
type Options struct {
	// MaxRetries is the total number of attempts, including the first.
	MaxRetries   int
	InitialDelay time.Duration
	// MaxJitter bounds the random delay added to each sleep.
	MaxJitter time.Duration
	// OnRetry is called before each sleep with the zero-based attempt that
	// just failed and the delay about to be slept.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultOptions returns 4 attempts starting at 1s with up to 1s of jitter.
func DefaultOptions() Options {
	return Options{MaxRetries: 4, InitialDelay: time.Second, MaxJitter: time.Second}
}

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// exponential yields initial*2^attempt plus jitter for each successive attempt.
type exponential struct {
	initial   time.Duration
	maxJitter time.Duration
	attempt   int
}

func (b *exponential) NextBackOff() time.Duration {
	d := b.initial << b.attempt
	if b.maxJitter > 0 {
		d += rand.N(b.maxJitter + 1)
	}
	b.attempt++
	return d
}

func (b *exponential) Reset() { b.attempt = 0 }

// Do calls fn until it succeeds, returns an error the classifier rejects, or
// MaxRetries attempts have been made. The last error is returned unchanged.
func Do[T any](ctx context.Context, opts Options, transient Classifier, fn func(ctx context.Context) (T, error)) (T, error) {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}

	attempt := 0
	op := func() (T, error) {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if transient == nil || !transient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	var policy backoff.BackOff = &exponential{initial: opts.InitialDelay, maxJitter: opts.MaxJitter}
	policy = backoff.WithMaxRetries(policy, uint64(opts.MaxRetries-1))
	policy = backoff.WithContext(policy, ctx)

	notify := func(err error, delay time.Duration) {
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, delay, err)
		}
		attempt++
	}

	return backoff.RetryNotifyWithData(op, policy, notify)
}
