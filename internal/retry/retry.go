// Package retry wraps outbound chat-API calls with bounded recovery from
// flood-control ("retry after N seconds") and timeout errors. Each wrapped
// call performs up to MAX-1 recovering attempts per error kind, then one
// final bare attempt whose error escapes to the caller.
package retry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Kind classifies a transient outbound-API failure.
type Kind int

const (
	// KindFatal is any error the policy does not recover from.
	KindFatal Kind = iota

	// KindFloodControl is a rate-limit rejection carrying a server-imposed
	// delay.
	KindFloodControl

	// KindTimeout is a request that timed out in flight.
	KindTimeout
)

// String returns the snake_case name of the kind, as used in logs and metric
// attributes.
func (k Kind) String() string { return kindName(k) }

// Policy holds the retry budgets and the error classifier for one API
// surface. The zero value retries nothing.
type Policy struct {
	// MaxFloodRetries and MaxTimeoutRetries are total attempt budgets per
	// kind, counting the final bare attempt.
	MaxFloodRetries   int
	MaxTimeoutRetries int

	// FloodBuffer is added to every server-imposed flood-control delay;
	// TimeoutBuffer is the whole wait after a timeout.
	FloodBuffer   time.Duration
	TimeoutBuffer time.Duration

	// Classify inspects an error and returns its kind plus the
	// server-imposed delay for flood control errors.
	Classify func(err error) (kind Kind, delay time.Duration)

	// OnFloodControl, if set, is invoked with the server-imposed delay
	// before each flood-control wait. The worker uses it to raise the
	// supervisor's pinned notice.
	OnFloodControl func(delay time.Duration)

	// OnRetry, if set, is invoked with the failure kind before each
	// recovering wait. The worker uses it to count retries.
	OnRetry func(kind Kind)

	// Sleep replaces the context-aware wait in tests. Nil means real sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// recoveryID is a process-wide monotonic counter attached to each retried
// attempt so one outbound failure can be traced across its retries in logs.
var recoveryID atomic.Uint64

// Do runs op under the policy and returns its result. Flood-control and
// timeout errors are retried within their budgets; any other error, a
// cancelled context, or an exhausted budget returns the last error as-is.
func Do[T any](ctx context.Context, p Policy, name string, op func() (T, error)) (T, error) {
	floodLeft := p.MaxFloodRetries - 1
	timeoutLeft := p.MaxTimeoutRetries - 1

	for {
		result, err := op()
		if err == nil || p.Classify == nil {
			return result, err
		}

		kind, delay := p.Classify(err)
		var wait time.Duration
		switch kind {
		case KindFloodControl:
			if floodLeft <= 0 {
				return result, err
			}
			floodLeft--
			if p.OnFloodControl != nil {
				p.OnFloodControl(delay)
			}
			wait = delay + p.FloodBuffer
		case KindTimeout:
			if timeoutLeft <= 0 {
				return result, err
			}
			timeoutLeft--
			wait = p.TimeoutBuffer
		default:
			return result, err
		}

		if p.OnRetry != nil {
			p.OnRetry(kind)
		}

		id := recoveryID.Add(1)
		slog.Warn("retrying outbound call",
			"op", name,
			"recovery_id", id,
			"kind", kindName(kind),
			"wait", wait,
			"err", err,
		)
		if err := sleep(ctx, p, wait); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Do1 wraps an op with no result value.
func Do1(ctx context.Context, p Policy, name string, op func() error) error {
	_, err := Do(ctx, p, name, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

func sleep(ctx context.Context, p Policy, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func kindName(k Kind) string {
	switch k {
	case KindFloodControl:
		return "flood_control"
	case KindTimeout:
		return "timeout"
	default:
		return "fatal"
	}
}
