package domain

import "time"

type Granularity int

const (
	Hourly Granularity = iota
	Daily
)

// Width is the duration covered by one bucket.
func (g Granularity) Width() time.Duration {
	if g == Daily {
		return 24 * time.Hour
	}
	return time.Hour
}

// DefaultCount is the number of buckets shown for the granularity:
// the last 24 hours or the last 30 days.
func (g Granularity) DefaultCount() int {
	if g == Daily {
		return 30
	}
	return 24
}

func (g Granularity) String() string {
	if g == Daily {
		return "daily"
	}
	return "hourly"
}
