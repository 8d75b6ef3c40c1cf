// Package retry re-runs operations that fail with a designated transient kind.
package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/yungbote/txcore/internal/data/dberr"
	"github.com/yungbote/txcore/internal/domain"
	"github.com/yungbote/txcore/internal/platform/ctxutil"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 3 * time.Second
)

// Policy is a retry budget. A fresh budget is built on every Do call, so one
// Policy value can be shared freely.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean DefaultMaxAttempts.
	MaxAttempts int
	// Delay between attempts, or the base delay when Exponential is set.
	Delay       time.Duration
	Exponential bool
	// Retryable designates the transient kind. Nil means lock contention.
	Retryable func(error) bool
	// OnRetry runs before each wait, with the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// Default retries lock contention three times in total, three seconds apart.
func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay, Retryable: LockContention}
}

// Do calls fn until it succeeds, fails with a non-designated error, or the
// budget runs out. The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.normalized()
	attempt := 0
	return goretry.Do(ctxutil.Default(ctx), p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !p.Retryable(err) {
			return err
		}
		if attempt < p.MaxAttempts && p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		return goretry.RetryableError(err)
	})
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultDelay
	}
	if p.Retryable == nil {
		p.Retryable = LockContention
	}
	return p
}

func (p Policy) backoff() goretry.Backoff {
	var b goretry.Backoff
	if p.Exponential {
		b = goretry.NewExponential(p.Delay)
	} else {
		b = goretry.NewConstant(p.Delay)
	}
	return goretry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// LockContention matches a failed non-blocking lock, however deeply wrapped.
func LockContention(err error) bool { return dberr.IsLockContention(err) }

// OnCode matches errors carrying code anywhere in their chain.
func OnCode(code domain.ErrorCode) func(error) bool {
	return func(err error) bool { return domain.IsCode(err, code) }
}

// OnKind matches errors that are, or wrap, target.
func OnKind(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// OnType matches errors that are, or wrap, an E.
func OnType[E error]() func(error) bool {
	return func(err error) bool {
		var target E
		return errors.As(err, &target)
	}
}
