// Package wait polls a condition a bounded number of times.
package wait

import (
	"context"
	"time"

	cerr "github.com/cockroachdb/errors"
)

// ErrExhausted is wrapped around the last condition error when every attempt failed.
var ErrExhausted = cerr.New("condition not met")

// Options bounds a Poll. Attempts below 1 mean a single attempt.
type Options struct {
	Attempts int
	Interval time.Duration
	// Wake, when non-nil, ends an interval early each time it receives.
	Wake <-chan struct{}
}

type breakErr struct{ err error }

func (b *breakErr) Error() string { return b.err.Error() }
func (b *breakErr) Unwrap() error { return b.err }

// Break wraps err so that Poll returns it immediately without retrying.
func Break(err error) error {
	if err == nil {
		return nil
	}
	return &breakErr{err: err}
}

// Poll calls cond until it returns nil, returns a Break error, the attempts
// run out or ctx is done. The interval is slept between attempts only.
func Poll(ctx context.Context, cond func(ctx context.Context) error, opts Options) error {
	attempts := max(1, opts.Attempts)
	var last error
	for i := 1; i <= attempts; i++ {
		last = cond(ctx)
		if last == nil {
			return nil
		}
		var b *breakErr
		if cerr.As(last, &b) {
			return b.err
		}
		if i == attempts {
			break
		}
		if err := sleepOrWake(ctx, opts.Interval, opts.Wake); err != nil {
			return cerr.Wrap(err, "polling interrupted")
		}
	}
	return cerr.Wrapf(cerr.Join(ErrExhausted, last), "gave up after %d attempt(s)", attempts)
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	return sleepOrWake(ctx, d, nil)
}

func sleepOrWake(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
		return nil
	case <-t.C:
		return nil
	}
}
