// Package report assembles the read models behind the dashboard: stored
// bucket rows for each site, gap-filled by the aggregate package.
package report

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hamed0406/uptimeboard/internal/aggregate"
	"github.com/hamed0406/uptimeboard/internal/domain"
	"github.com/hamed0406/uptimeboard/internal/repo"
)

// SiteSeries is one dashboard row.
type SiteSeries struct {
	Site    domain.Site     `json:"site"`
	Buckets []domain.Bucket `json:"buckets"`
}

// Current is the uptime of the newest bucket, nil when it has no data.
func (s SiteSeries) Current() *int {
	if len(s.Buckets) == 0 {
		return nil
	}
	return s.Buckets[0].UptimePct
}

type Overview struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Sites       []SiteSeries `json:"sites"`
}

type Detail struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Site        domain.Site       `json:"site"`
	Hourly      []domain.Bucket   `json:"hourly"`
	Daily       []domain.Bucket   `json:"daily"`
	Incidents   []domain.Incident `json:"incidents"`
}

type Builder struct {
	Store       repo.Store
	Now         func() time.Time
	HourlyCount int
	DailyCount  int

	// Concurrent identical requests share one set of store queries.
	group singleflight.Group
}

func NewBuilder(store repo.Store) *Builder {
	return &Builder{
		Store:       store,
		Now:         time.Now,
		HourlyCount: domain.Hourly.DefaultCount(),
		DailyCount:  domain.Daily.DefaultCount(),
	}
}

// sharedTimeout bounds a build that no longer follows any caller's context.
const sharedTimeout = 30 * time.Second

// shared runs fn once for all concurrent callers of key. fn gets a context
// detached from the caller that started it, so one client going away does not
// fail the others; each caller still stops waiting when its own ctx is done.
func (b *Builder) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := b.group.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedTimeout)
		defer cancel()
		return fn(sctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (b *Builder) Overview(ctx context.Context) (Overview, error) {
	v, err := b.shared(ctx, "overview", func(ctx context.Context) (any, error) {
		return b.overview(ctx)
	})
	if err != nil {
		return Overview{}, err
	}
	return v.(Overview), nil
}

func (b *Builder) overview(ctx context.Context) (Overview, error) {
	now := b.Now()
	sites, err := b.Store.ListSites(ctx)
	if err != nil {
		return Overview{}, err
	}

	out := Overview{GeneratedAt: now.UTC(), Sites: make([]SiteSeries, 0, len(sites))}
	for _, s := range sites {
		buckets, err := b.series(ctx, s.Alias, domain.Hourly, b.HourlyCount, now)
		if err != nil {
			return Overview{}, err
		}
		out.Sites = append(out.Sites, SiteSeries{Site: s, Buckets: buckets})
	}
	return out, nil
}

func (b *Builder) Detail(ctx context.Context, alias string) (Detail, error) {
	v, err := b.shared(ctx, "detail:"+alias, func(ctx context.Context) (any, error) {
		return b.detail(ctx, alias)
	})
	if err != nil {
		return Detail{}, err
	}
	return v.(Detail), nil
}

func (b *Builder) detail(ctx context.Context, alias string) (Detail, error) {
	now := b.Now()
	site, err := b.Store.GetSite(ctx, alias)
	if err != nil {
		return Detail{}, err
	}
	hourly, err := b.series(ctx, alias, domain.Hourly, b.HourlyCount, now)
	if err != nil {
		return Detail{}, err
	}
	daily, err := b.series(ctx, alias, domain.Daily, b.DailyCount, now)
	if err != nil {
		return Detail{}, err
	}
	incidents, err := b.Store.Incidents(ctx, alias)
	if err != nil {
		return Detail{}, err
	}
	return Detail{
		GeneratedAt: now.UTC(),
		Site:        site,
		Hourly:      hourly,
		Daily:       daily,
		Incidents:   incidents,
	}, nil
}

// series queries exactly the window Fill will lay out, so the two agree.
func (b *Builder) series(ctx context.Context, alias string, g domain.Granularity, count int, now time.Time) ([]domain.Bucket, error) {
	rows, err := b.Store.BucketedStats(ctx, alias, g, aggregate.WindowStart(now, g, count), count)
	if err != nil {
		return nil, err
	}
	return aggregate.Fill(rows, g, count, now), nil
}
