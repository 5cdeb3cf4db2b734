// Package aggregate turns per-bucket uptime rows into a dense, fixed-length
// series suitable for charting.
//
// Every bucket boundary is computed with Truncate, in UTC. The SQL engines
// group raw observations with the same rule so that real rows and
// synthesized rows line up exactly.
package aggregate

import (
	"time"

	"github.com/hamed0406/uptimeboard/internal/domain"
)

// Truncate returns the start of the bucket containing t: minutes, seconds and
// nanoseconds are zeroed, and for Daily the hour as well.
func Truncate(t time.Time, g domain.Granularity) time.Time {
	t = t.UTC()
	if g == domain.Daily {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
}

// WindowStart is the start of the oldest bucket in a series of count buckets
// ending with the bucket that contains now. Stores filter raw observations
// from this instant on.
func WindowStart(now time.Time, g domain.Granularity, count int) time.Time {
	if count < 1 {
		count = 1
	}
	return step(Truncate(now, g), g, -(count - 1))
}

// UptimePct is floor(100 * up / total). It returns nil for an empty bucket.
func UptimePct(up, total int) *int {
	if total <= 0 {
		return nil
	}
	pct := 100 * up / total
	return &pct
}

// Fill returns exactly count buckets, newest first, covering the count
// buckets that trail now. Rows whose start matches a slot fill that slot;
// slots with no row get a nil UptimePct. Rows outside the window are
// dropped. rows is not modified.
func Fill(rows []domain.Bucket, g domain.Granularity, count int, now time.Time) []domain.Bucket {
	if count < 1 {
		return []domain.Bucket{}
	}

	byStart := make(map[time.Time]*int, len(rows))
	for _, r := range rows {
		byStart[Truncate(r.Start, g)] = r.UptimePct
	}

	anchor := Truncate(now, g)
	out := make([]domain.Bucket, 0, count)
	for k := 0; k < count; k++ {
		start := step(anchor, g, -k)
		b := domain.Bucket{Start: start}
		if pct, ok := byStart[start]; ok && pct != nil {
			v := *pct
			b.UptimePct = &v
		}
		out = append(out, b)
	}
	return out
}

// step moves n buckets from start. Daily steps use the calendar so that a
// day is always a day in UTC.
func step(start time.Time, g domain.Granularity, n int) time.Time {
	if g == domain.Daily {
		return start.AddDate(0, 0, n)
	}
	return start.Add(time.Duration(n) * time.Hour)
}
