package domain

import "time"

// StatusRequestFailed marks an observation whose probe never got an HTTP
// response (refused, timeout, DNS). No valid HTTP status is 0.
const StatusRequestFailed = 0

type Site struct {
	Alias     string    `json:"alias"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type Observation struct {
	SiteAlias  string    `json:"site_alias"`
	ObservedAt time.Time `json:"observed_at"`
	StatusCode int       `json:"status_code"`
}

// Up reports whether the observation counts towards uptime.
func (o Observation) Up() bool { return o.StatusCode == 200 }

// Bucket is one fixed-width window of a series. UptimePct is nil when no
// observation fell into the window.
type Bucket struct {
	Start     time.Time `json:"start"`
	UptimePct *int      `json:"uptime_pct"`
}

type Incident struct {
	ObservedAt time.Time `json:"observed_at"`
	StatusCode int       `json:"status_code"`
}

// RequestFailed reports whether the incident is a probe failure rather than
// an HTTP status returned by the site.
func (i Incident) RequestFailed() bool { return i.StatusCode == StatusRequestFailed }
