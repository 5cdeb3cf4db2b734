package probe

import (
	"context"

	"github.com/hamed0406/uptimeboard/internal/domain"
)

// CheckResult is the outcome of a single probe.
//
// StatusCode is the HTTP status as received, or domain.StatusRequestFailed
// when no response arrived (timeout, refused, DNS). Err is set only in the
// latter case.
type CheckResult struct {
	StatusCode int
	LatencyMS  float64
	Message    string
	Err        error
}

// Up reports whether the site answered 200.
func (r CheckResult) Up() bool { return r.StatusCode == 200 }

// RequestFailed reports whether no HTTP response was received.
func (r CheckResult) RequestFailed() bool {
	return r.Err != nil || r.StatusCode == domain.StatusRequestFailed
}

// Checker performs a single check for a given target URL.
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}
