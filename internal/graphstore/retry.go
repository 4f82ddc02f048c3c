// File: internal/graphstore/retry.go
package graphstore

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy retries transient read failures with linear backoff:
// the n-th retry waits Delay*(n).
type RetryPolicy struct {
	Retries int
	Delay   time.Duration
	// IsTransient classifies an error; nil falls back to IsTransient.
	IsTransient func(error) bool
	// OnRetry, when set, is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy retries twice, waiting 500ms then 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 2, Delay: 500 * time.Millisecond}
}

// linearBackOff waits delay, 2*delay, 3*delay, ...
type linearBackOff struct {
	delay time.Duration
	n     int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return l.delay * time.Duration(l.n)
}

func (l *linearBackOff) Reset() { l.n = 0 }

// Do runs fn, retrying while it fails with a transient error and attempts remain.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	classify := p.IsTransient
	if classify == nil {
		classify = IsTransient
	}
	retries := uint64(0)
	if p.Retries > 0 {
		retries = uint64(p.Retries)
	}

	operation := func() error {
		err := fn(ctx)
		if err != nil && !classify(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	attempt := 0
	notify := func(err error, _ time.Duration) {
		attempt++
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{delay: p.Delay}, retries), ctx)
	return backoff.RetryNotify(operation, b, notify)
}

var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"econnrefused",
	"broken pipe",
	"i/o timeout",
	"serviceunavailable",
	"service unavailable",
	"connectivity",
}

// IsTransient reports whether err is a connectivity failure rather than a
// statement, data or load error. Query and transaction timeouts are not
// transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
