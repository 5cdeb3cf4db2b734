package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hamed0406/uptimeboard/internal/domain"
)

const userAgent = "uptimeboard-prober/1.0"

type HTTPChecker struct {
	Client *http.Client
}

// NewHTTPChecker returns a checker whose requests give up after timeout.
// Redirects are followed; the final status is reported.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		Client: &http.Client{Timeout: timeout},
	}
}

func (h *HTTPChecker) Check(ctx context.Context, target string) CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return CheckResult{StatusCode: domain.StatusRequestFailed, Message: err.Error(), Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		return CheckResult{StatusCode: domain.StatusRequestFailed, Message: err.Error(), LatencyMS: latency, Err: err}
	}
	defer resp.Body.Close()
	// Drain a little so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return CheckResult{
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
		LatencyMS:  latency,
	}
}
