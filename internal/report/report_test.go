package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeboard/internal/aggregate"
	"github.com/hamed0406/uptimeboard/internal/apperr"
	"github.com/hamed0406/uptimeboard/internal/domain"
	"github.com/hamed0406/uptimeboard/internal/probe"
	"github.com/hamed0406/uptimeboard/internal/repo"
	"github.com/hamed0406/uptimeboard/internal/repo/memory"
	"github.com/hamed0406/uptimeboard/internal/repo/sqlite"
	"github.com/hamed0406/uptimeboard/internal/scheduler"
)

var fixedNow = time.Date(2025, 8, 18, 14, 37, 12, 0, time.UTC)

// stubTransport sends every request to one local server, whatever its host.
type stubTransport struct{ target *url.URL }

func (s stubTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = s.target.Scheme
	r.URL.Host = s.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func stubChecker(t *testing.T, status int) probe.Checker {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return &probe.HTTPChecker{Client: &http.Client{Timeout: 2 * time.Second, Transport: stubTransport{target: u}}}
}

func TestEndToEnd_OneTickYieldsCurrentHourAt100(t *testing.T) {
	for name, open := range map[string]func(t *testing.T) repo.Store{
		"memory": func(t *testing.T) repo.Store { return memory.New() },
		"sqlite": func(t *testing.T) repo.Store {
			s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "e2e.db"), zap.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)
			require.NoError(t, store.InsertSite(ctx, "https://example.com", "ex", fixedNow))

			p := scheduler.NewProber(zap.NewNop(), store, store, stubChecker(t, 200), scheduler.ProberConfig{Interval: time.Minute})
			p.Now = func() time.Time { return fixedNow }
			rep := p.Tick(ctx)
			require.Equal(t, 1, rep.Recorded, "report: %+v", rep)

			b := NewBuilder(store)
			b.Now = func() time.Time { return fixedNow }

			ov, err := b.Overview(ctx)
			require.NoError(t, err)
			require.Len(t, ov.Sites, 1)
			buckets := ov.Sites[0].Buckets
			require.Len(t, buckets, 24)

			assert.Equal(t, aggregate.Truncate(fixedNow, domain.Hourly), buckets[0].Start)
			require.NotNil(t, buckets[0].UptimePct)
			assert.Equal(t, 100, *buckets[0].UptimePct)
			for i, bk := range buckets[1:] {
				assert.Nil(t, bk.UptimePct, "bucket %d", i+1)
			}
			require.NotNil(t, ov.Sites[0].Current())
			assert.Equal(t, 100, *ov.Sites[0].Current())
		})
	}
}

func TestDetail_SeriesAndIncidents(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.InsertSite(ctx, "https://example.com", "ex", fixedNow))
	for _, st := range []int{200, 200, 200, 404} {
		require.NoError(t, store.InsertObservation(ctx, "ex", st, fixedNow))
	}
	require.NoError(t, store.InsertObservation(ctx, "ex", 500, fixedNow.AddDate(0, 0, -2)))

	b := NewBuilder(store)
	b.Now = func() time.Time { return fixedNow }

	d, err := b.Detail(ctx, "ex")
	require.NoError(t, err)
	assert.Equal(t, "ex", d.Site.Alias)
	require.Len(t, d.Hourly, 24)
	require.Len(t, d.Daily, 30)

	require.NotNil(t, d.Hourly[0].UptimePct)
	assert.Equal(t, 75, *d.Hourly[0].UptimePct)
	require.NotNil(t, d.Daily[0].UptimePct)
	assert.Equal(t, 75, *d.Daily[0].UptimePct)
	assert.Nil(t, d.Daily[1].UptimePct)
	require.NotNil(t, d.Daily[2].UptimePct)
	assert.Equal(t, 0, *d.Daily[2].UptimePct)

	require.Len(t, d.Incidents, 2)
	assert.Equal(t, 404, d.Incidents[0].StatusCode)
	assert.Equal(t, 500, d.Incidents[1].StatusCode)
}

func TestDetail_UnknownAlias(t *testing.T) {
	b := NewBuilder(memory.New())
	_, err := b.Detail(context.Background(), "nope")
	assert.True(t, apperr.Is(err, apperr.NotFound), "err=%v", err)
}

func TestOverview_EmptyStore(t *testing.T) {
	ov, err := NewBuilder(memory.New()).Overview(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ov.Sites)
	assert.NotNil(t, ov.Sites, "encodes as [] rather than null")
}

// slowSites holds ListSites until release is closed, or until its own ctx
// is done.
type slowSites struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *slowSites) ListSites(ctx context.Context) ([]domain.Site, error) {
	if s.calls.Add(1) == 1 {
		close(s.entered)
	}
	select {
	case <-s.release:
		return s.Store.ListSites(ctx)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestOverview_CancelledCallerDoesNotFailOthers(t *testing.T) {
	mem := memory.New()
	require.NoError(t, mem.InsertSite(context.Background(), "https://example.com", "ex", fixedNow))
	store := &slowSites{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	b := NewBuilder(store)
	b.Now = func() time.Time { return fixedNow }

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := b.Overview(firstCtx)
		firstErr <- err
	}()
	<-store.entered

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	// The build started by the first caller is still running; this call joins it.
	time.AfterFunc(50*time.Millisecond, func() { close(store.release) })
	ov, err := b.Overview(context.Background())
	require.NoError(t, err)
	require.Len(t, ov.Sites, 1)
	assert.Equal(t, "ex", ov.Sites[0].Site.Alias)
	assert.EqualValues(t, 1, store.calls.Load(), "second caller shares the first build")
}
