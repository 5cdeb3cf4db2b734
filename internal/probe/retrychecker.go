package probe

import (
	"context"
	"time"
)

// RetryChecker retries the inner checker while no HTTP response arrives.
// Any received status, 5xx included, is final: it is what gets recorded.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, target string) CheckResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last CheckResult
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		if !last.RequestFailed() {
			return last
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				last.Message += " (retries cancelled)"
				return last
			case <-time.After(r.Backoff):
			}
		}
	}
	if attempts > 1 {
		last.Message += " (after retries)"
	}
	return last
}
