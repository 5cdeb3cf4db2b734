package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fake checker you can control
type fakeChecker struct {
	results []CheckResult
	i       int
}

func (f *fakeChecker) Check(ctx context.Context, target string) CheckResult {
	if f.i >= len(f.results) {
		return CheckResult{Message: "no more", Err: errors.New("no more")}
	}
	r := f.results[f.i]
	f.i++
	return r
}

var errRefused = errors.New("connection refused")

func TestRetryChecker_SucceedsAfterRetry(t *testing.T) {
	f := &fakeChecker{
		results: []CheckResult{
			{Message: "first fail", Err: errRefused},
			{StatusCode: 200, Message: "200 OK"},
		},
	}
	rc := &RetryChecker{
		Inner:    f,
		Attempts: 3,
		Backoff:  10 * time.Millisecond,
	}
	out := rc.Check(context.Background(), "https://example.com")
	if !out.Up() {
		t.Fatalf("expected success after retry, got %+v", out)
	}
	if f.i != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.i)
	}
}

func TestRetryChecker_StatusIsNotRetried(t *testing.T) {
	f := &fakeChecker{
		results: []CheckResult{
			{StatusCode: 503, Message: "503 Service Unavailable"},
			{StatusCode: 200, Message: "200 OK"},
		},
	}
	rc := &RetryChecker{Inner: f, Attempts: 3, Backoff: time.Millisecond}
	out := rc.Check(context.Background(), "https://example.com")
	if out.StatusCode != 503 {
		t.Fatalf("expected the 503 to be final, got %+v", out)
	}
	if f.i != 1 {
		t.Fatalf("expected 1 attempt, got %d", f.i)
	}
}

func TestRetryChecker_AllFailAnnotates(t *testing.T) {
	f := &fakeChecker{
		results: []CheckResult{
			{Message: "fail1", Err: errRefused},
			{Message: "fail2", Err: errRefused},
		},
	}
	rc := &RetryChecker{
		Inner:    f,
		Attempts: 2,
		Backoff:  5 * time.Millisecond,
	}
	out := rc.Check(context.Background(), "https://example.com")
	if !out.RequestFailed() {
		t.Fatalf("expected failure, got %+v", out)
	}
	if !strings.HasSuffix(out.Message, "(after retries)") {
		t.Fatalf("expected failure message annotation, got %q", out.Message)
	}
}

func TestRetryChecker_StopsOnCancel(t *testing.T) {
	f := &fakeChecker{
		results: []CheckResult{
			{Message: "fail1", Err: errRefused},
			{StatusCode: 200},
		},
	}
	rc := &RetryChecker{Inner: f, Attempts: 2, Backoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := rc.Check(ctx, "https://example.com")
	if !out.RequestFailed() || f.i != 1 {
		t.Fatalf("expected one failed attempt, got %+v after %d attempts", out, f.i)
	}
}
