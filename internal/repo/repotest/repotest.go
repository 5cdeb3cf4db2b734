// Package repotest is the behavioural suite every repo.Store engine must pass.
// Engine packages call Run from their own tests with a constructor that
// returns an empty store.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/uptimeboard/internal/aggregate"
	"github.com/hamed0406/uptimeboard/internal/apperr"
	"github.com/hamed0406/uptimeboard/internal/domain"
	"github.com/hamed0406/uptimeboard/internal/repo"
)

// Now is the fixed clock the suite writes observations against.
var Now = time.Date(2025, 8, 18, 14, 37, 12, 0, time.UTC)

// Run executes every contract test against stores produced by newStore.
func Run(t *testing.T, newStore func(t *testing.T) repo.Store) {
	t.Run("InsertAndList", func(t *testing.T) { testInsertAndList(t, newStore(t)) })
	t.Run("InsertRejectsBadInput", func(t *testing.T) { testInsertRejectsBadInput(t, newStore(t)) })
	t.Run("InsertConflict", func(t *testing.T) { testInsertConflict(t, newStore(t)) })
	t.Run("GetSiteNotFound", func(t *testing.T) { testGetSiteNotFound(t, newStore(t)) })
	t.Run("ObservationForUnknownSite", func(t *testing.T) { testObservationUnknownSite(t, newStore(t)) })
	t.Run("HourlyPercentages", func(t *testing.T) { testHourlyPercentages(t, newStore(t)) })
	t.Run("DailyBuckets", func(t *testing.T) { testDailyBuckets(t, newStore(t)) })
	t.Run("SinceAndLimit", func(t *testing.T) { testSinceAndLimit(t, newStore(t)) })
	t.Run("Incidents", func(t *testing.T) { testIncidents(t, newStore(t)) })
	t.Run("DeleteRemovesObservations", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("DeleteNotFound", func(t *testing.T) { testDeleteNotFound(t, newStore(t)) })
	t.Run("Prune", func(t *testing.T) { testPrune(t, newStore(t)) })
}

func testInsertAndList(t *testing.T, s repo.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertSite(ctx, "https://Example.com:443/a#top", "ex", Now))
	require.NoError(t, s.InsertSite(ctx, "http://second.example.org", "second", Now.Add(time.Minute)))

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "ex", sites[0].Alias)
	assert.Equal(t, "https://example.com/a", sites[0].URL)
	assert.True(t, sites[0].CreatedAt.Equal(Now), "created_at round trip: %s", sites[0].CreatedAt)
	assert.Equal(t, "second", sites[1].Alias)

	got, err := s.GetSite(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, "http://second.example.org", got.URL)
}

func testInsertRejectsBadInput(t *testing.T, s repo.Store) {
	ctx := context.Background()

	for _, tc := range []struct{ url, alias string }{
		{"", "ex"},
		{"example.com", "ex"},
		{"ftp://example.com", "ex"},
		{"https://example.com", ""},
		{"https://example.com", "has space"},
		{"https://example.com", "a/b"},
	} {
		err := s.InsertSite(ctx, tc.url, tc.alias, Now)
		assert.True(t, apperr.Is(err, apperr.Validation), "url=%q alias=%q err=%v", tc.url, tc.alias, err)
	}

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func testInsertConflict(t *testing.T, s repo.Store) {
	ctx := context.Background()

	require.NoError(t, s.InsertSite(ctx, "https://example.com", "ex", Now))
	err := s.InsertSite(ctx, "https://other.example.com", "ex", Now)
	assert.True(t, apperr.Is(err, apperr.Conflict), "err=%v", err)

	got, err := s.GetSite(ctx, "ex")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.URL, "first registration must win")
}

func testGetSiteNotFound(t *testing.T, s repo.Store) {
	_, err := s.GetSite(context.Background(), "nope")
	assert.True(t, apperr.Is(err, apperr.NotFound), "err=%v", err)
}

func testObservationUnknownSite(t *testing.T, s repo.Store) {
	err := s.InsertObservation(context.Background(), "nope", 200, Now)
	assert.True(t, apperr.Is(err, apperr.NotFound), "err=%v", err)
}

func testHourlyPercentages(t *testing.T, s repo.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertSite(ctx, "https://example.com", "ex", Now))

	hour := aggregate.Truncate(Now, domain.Hourly)
	prev := hour.Add(-time.Hour)
	record(t, s, "ex", hour, 200, 200, 200, 404)
	record(t, s, "ex", prev, 200, 200, 200, 200, domain.StatusRequestFailed)

	rows, err := s.BucketedStats(ctx, "ex", domain.Hourly, aggregate.WindowStart(Now, domain.Hourly, 24), 24)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.True(t, rows[0].Start.Equal(prev), "rows[0].Start=%s", rows[0].Start)
	require.NotNil(t, rows[0].UptimePct)
	assert.Equal(t, 80, *rows[0].UptimePct)

	assert.True(t, rows[1].Start.Equal(hour), "rows[1].Start=%s", rows[1].Start)
	require.NotNil(t, rows[1].UptimePct)
	assert.Equal(t, 75, *rows[1].UptimePct)
}

func testDailyBuckets(t *testing.T, s repo.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertSite(ctx, "https://example.com", "ex", Now))

	day := aggregate.Truncate(Now, domain.Daily)
	// Straddle midnight: 23:59 belongs to yesterday, 00:00 to today.
	record(t, s, "ex", day.Add(-time.Minute), 500)
	record(t, s, "ex", day, 200, 200, 404)

	rows, err := s.BucketedStats(ctx, "ex", domain.Daily, aggregate.WindowStart(Now, domain.Daily, 30), 30)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Start.Equal(day.AddDate(0, 0, -1)))
	require.NotNil(t, rows[0].UptimePct)
	assert.Equal(t, 0, *rows[0].UptimePct)
	assert.True(t, rows[1].Start.Equal(day))
	require.NotNil(t, rows[1].UptimePct)
	assert.Equal(t, 66, *rows[1].UptimePct)
}

func testSinceAndLimit(t *testing.T, s repo.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertSite(ctx, "https://example.com", "ex", Now))
	require.NoError(t, s.InsertSite(ctx, "https://other.example.com", "other", Now))

	hour := aggregate.Truncate(Now, domain.Hourly)
	for k := 0; k < 30; k++ {
		record(t, s, "ex", hour.Add(-time.Duration(k)*time.Hour), 200)
	}
	record(t, s, "other", hour, 500)

	since := aggregate.WindowStart(Now, domain.Hourly, 24)
	rows, err := s.BucketedStats(ctx, "ex", domain.Hourly, since, 24)
	require.NoError(t, err)
	require.Len(t, rows, 24)
	assert.True(t, rows[0].Start.Equal(since))
	for _, r := range rows {
		require.NotNil(t, r.UptimePct)
		assert.Equal(t, 100, *r.UptimePct, "other site's rows must not leak in")
	}

	rows, err = s.BucketedStats(ctx, "ex", domain.Hourly, since, 5)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func testIncidents(t *testing.T, s repo.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertSite(ctx, "https://example.com", "ex", Now))

	record(t, s, "ex", Now.Add(-3*time.Minute), 503)
	record(t, s, "ex", Now.Add(-2*time.Minute), 200)
	record(t, s, "ex", Now.Add(-time.Minute), domain.StatusRequestFailed)

	inc, err := s.Incidents(ctx, "ex")
	require.NoError(t, err)
	require.Len(t, inc, 2)
	assert.Equal(t, domain.StatusRequestFailed, inc[0].StatusCode)
	assert.True(t, inc[0].ObservedAt.Equal(Now.Add(-time.Minute)))
	assert.Equal(t, 503, inc[1].StatusCode)

	inc, err = s.Incidents(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, inc)
}

func testDelete(t *testing.T, s repo.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertSite(ctx, "https://example.com", "ex", Now))
	require.NoError(t, s.InsertSite(ctx, "https://keep.example.com", "keep", Now))
	for i := 0; i < 10; i++ {
		record(t, s, "ex", Now.Add(-time.Duration(i)*time.Minute), 404)
	}
	record(t, s, "keep", Now, 404)

	require.NoError(t, s.DeleteSite(ctx, "ex"))

	_, err := s.GetSite(ctx, "ex")
	assert.True(t, apperr.Is(err, apperr.NotFound))
	inc, err := s.Incidents(ctx, "ex")
	require.NoError(t, err)
	assert.Empty(t, inc)

	// Re-registering the alias starts from a clean slate.
	require.NoError(t, s.InsertSite(ctx, "https://example.com", "ex", Now))
	rows, err := s.BucketedStats(ctx, "ex", domain.Hourly, aggregate.WindowStart(Now, domain.Hourly, 24), 24)
	require.NoError(t, err)
	assert.Empty(t, rows)

	inc, err = s.Incidents(ctx, "keep")
	require.NoError(t, err)
	assert.Len(t, inc, 1)
}

func testDeleteNotFound(t *testing.T, s repo.Store) {
	err := s.DeleteSite(context.Background(), "nope")
	assert.True(t, apperr.Is(err, apperr.NotFound), "err=%v", err)
}

func testPrune(t *testing.T, s repo.Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertSite(ctx, "https://example.com", "ex", Now))
	record(t, s, "ex", Now.AddDate(0, 0, -40), 500, 500)
	record(t, s, "ex", Now.Add(-time.Hour), 500)

	n, err := s.PruneObservations(ctx, Now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	inc, err := s.Incidents(ctx, "ex")
	require.NoError(t, err)
	assert.Len(t, inc, 1)
}

// record writes one observation per status, a millisecond apart from at.
func record(t *testing.T, s repo.Store, alias string, at time.Time, statuses ...int) {
	t.Helper()
	for i, st := range statuses {
		ts := at.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, s.InsertObservation(context.Background(), alias, st, ts), fmt.Sprintf("status %d", st))
	}
}
