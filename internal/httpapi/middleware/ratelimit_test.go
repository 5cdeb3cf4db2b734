package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimit_AllowsThenBlocks(t *testing.T) {
	h := RateLimit(60, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest("POST", "/websites", nil)
	req.RemoteAddr = "1.2.3.4:1234"

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != 200 {
			t.Fatalf("want 200 got %d", rr.Code)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != 429 {
		t.Fatalf("want 429 got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Fatalf("want Retry-After 1, got %q", rr.Header().Get("Retry-After"))
	}

	// a different client has its own bucket
	other := httptest.NewRequest("POST", "/websites", nil)
	other.RemoteAddr = "5.6.7.8:999"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	if rr.Code != 200 {
		t.Fatalf("other client: want 200 got %d", rr.Code)
	}

	time.Sleep(1100 * time.Millisecond)
	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req)
	if rr2.Code != 200 {
		t.Fatalf("want 200 after refill got %d", rr2.Code)
	}
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	h := RateLimit(0, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 100; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("DELETE", "/websites/x", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("want 204 got %d", rr.Code)
		}
	}
}

func TestLimiter_SweepsIdleBuckets(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newLimiter(1, 1, time.Minute)
	l.now = func() time.Time { return now }

	l.allow("a")
	l.allow("b")
	if l.size() != 2 {
		t.Fatalf("want 2 buckets, got %d", l.size())
	}

	now = now.Add(2 * time.Minute)
	l.allow("c")
	if l.size() != 1 {
		t.Fatalf("want idle buckets swept, got %d", l.size())
	}
}
