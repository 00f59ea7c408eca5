package upload

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/internal/remote"
)

// RetryPolicy describes how a failed operation is retried. MaxAttempts
// counts every attempt including the first.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration

	// Retryable classifies errors. Nil means IsRetryable.
	Retryable func(error) bool
}

// PolicyFromConfig builds the policy configured under upload.
func PolicyFromConfig(cfg config.UploadConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BackoffBase,
		MaxDelay:    cfg.BackoffMax,
		Jitter:      cfg.Jitter,
	}
}

// Delay is the wait after the n-th failed attempt (n >= 1):
// min(BaseDelay·2^(n-1), MaxDelay) plus a uniform jitter in [0, Jitter).
// A zero MaxDelay leaves the delay uncapped.
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(p.Jitter)))
	}
	return d
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsRetryable(err)
}

// BackOff returns a fresh backoff.BackOff that follows p. Each Execute call
// needs its own since the attempt count is stateful.
func (p RetryPolicy) BackOff() backoff.BackOff {
	return &policyBackOff{policy: p}
}

type policyBackOff struct {
	policy  RetryPolicy
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt >= max(b.policy.MaxAttempts, 1) {
		return backoff.Stop
	}
	return b.policy.Delay(b.attempt)
}

func (b *policyBackOff) Reset() { b.attempt = 0 }

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooEarly:            true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsRetryable reports whether err is a transient HTTP status or a transport
// failure. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *remote.StatusError
	if errors.As(err, &se) {
		return retryableStatus[se.Code]
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Execute runs op until it succeeds, returns a non-retryable error, runs out
// of attempts or ctx is done. The last error is returned unwrapped.
func Execute[T any](ctx context.Context, p RetryPolicy, name string, op func(context.Context) (T, error)) (T, error) {
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return v, backoff.Permanent(ctx.Err())
		}
		if !p.retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, next time.Duration) {
		slog.Warn("upload: retrying", "op", name, "attempt", attempt, "next_in", next, "err", err)
	}
	return backoff.RetryNotifyWithData(wrapped, backoff.WithContext(p.BackOff(), ctx), notify)
}
