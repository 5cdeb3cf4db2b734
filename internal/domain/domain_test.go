package domain

import (
	"testing"
	"time"
)

func TestGranularity_WidthAndCount(t *testing.T) {
	if Hourly.Width() != time.Hour || Hourly.DefaultCount() != 24 {
		t.Fatalf("hourly: width=%s count=%d", Hourly.Width(), Hourly.DefaultCount())
	}
	if Daily.Width() != 24*time.Hour || Daily.DefaultCount() != 30 {
		t.Fatalf("daily: width=%s count=%d", Daily.Width(), Daily.DefaultCount())
	}
	if Hourly.String() != "hourly" || Daily.String() != "daily" {
		t.Fatalf("names: %s %s", Hourly, Daily)
	}
}

func TestObservation_Up(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, true},
		{201, false},
		{301, false},
		{404, false},
		{StatusRequestFailed, false},
	}
	for _, c := range cases {
		if got := (Observation{StatusCode: c.code}).Up(); got != c.want {
			t.Fatalf("Up(%d)=%v want %v", c.code, got, c.want)
		}
	}
}

func TestIncident_RequestFailed(t *testing.T) {
	if !(Incident{StatusCode: StatusRequestFailed}).RequestFailed() {
		t.Fatal("status 0 should be a request failure")
	}
	if (Incident{StatusCode: 503}).RequestFailed() {
		t.Fatal("503 is an HTTP response, not a request failure")
	}
}
