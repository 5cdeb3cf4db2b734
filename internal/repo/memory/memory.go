package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/uptimeboard/internal/aggregate"
	"github.com/hamed0406/uptimeboard/internal/apperr"
	"github.com/hamed0406/uptimeboard/internal/domain"
	"github.com/hamed0406/uptimeboard/internal/repo"
	"github.com/hamed0406/uptimeboard/internal/urlutil"
)

var _ repo.Store = (*Store)(nil)

// Store keeps everything in process memory. It backs the tests and
// STORE=memory; nothing survives a restart.
type Store struct {
	mu           sync.RWMutex
	seq          int64
	sites        map[string]*site
	observations map[string][]domain.Observation
}

type site struct {
	domain.Site
	seq int64
}

func New() *Store {
	return &Store{
		sites:        make(map[string]*site),
		observations: make(map[string][]domain.Observation),
	}
}

func (m *Store) Close() error { return nil }

// ---- SiteStore ----

func (m *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*site, 0, len(m.sites))
	for _, s := range m.sites {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].seq < all[j].seq
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	out := make([]domain.Site, 0, len(all))
	for _, s := range all {
		out = append(out, s.Site)
	}
	return out, nil
}

func (m *Store) InsertSite(ctx context.Context, url, alias string, createdAt time.Time) error {
	normalized, err := urlutil.NormalizeURL(url)
	if err != nil {
		return err
	}
	if err := urlutil.ValidateAlias(alias); err != nil {
		return err
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[alias]; ok {
		return apperr.NewConflict("alias already registered", map[string]any{"alias": alias})
	}
	m.seq++
	m.sites[alias] = &site{
		Site: domain.Site{Alias: alias, URL: normalized, CreatedAt: createdAt.UTC()},
		seq:  m.seq,
	}
	return nil
}

func (m *Store) GetSite(ctx context.Context, alias string) (domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[alias]
	if !ok {
		return domain.Site{}, apperr.NewNotFound("site not found", map[string]any{"alias": alias})
	}
	return s.Site, nil
}

func (m *Store) DeleteSite(ctx context.Context, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[alias]; !ok {
		return apperr.NewNotFound("site not found", map[string]any{"alias": alias})
	}
	delete(m.sites, alias)
	delete(m.observations, alias)
	return nil
}

// ---- ObservationStore ----

func (m *Store) InsertObservation(ctx context.Context, alias string, status int, observedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[alias]; !ok {
		return apperr.NewNotFound("site not found", map[string]any{"alias": alias})
	}
	m.observations[alias] = append(m.observations[alias], domain.Observation{
		SiteAlias:  alias,
		ObservedAt: observedAt.UTC(),
		StatusCode: status,
	})
	return nil
}

func (m *Store) BucketedStats(ctx context.Context, alias string, g domain.Granularity, since time.Time, limit int) ([]domain.Bucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type tally struct{ up, total int }
	tallies := make(map[time.Time]*tally)
	for _, o := range m.observations[alias] {
		if o.ObservedAt.Before(since) {
			continue
		}
		start := aggregate.Truncate(o.ObservedAt, g)
		t := tallies[start]
		if t == nil {
			t = &tally{}
			tallies[start] = t
		}
		t.total++
		if o.Up() {
			t.up++
		}
	}

	out := make([]domain.Bucket, 0, len(tallies))
	for start, t := range tallies {
		out = append(out, domain.Bucket{Start: start, UptimePct: aggregate.UptimePct(t.up, t.total)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) Incidents(ctx context.Context, alias string) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Incident, 0)
	for _, o := range m.observations[alias] {
		if o.Up() {
			continue
		}
		out = append(out, domain.Incident{ObservedAt: o.ObservedAt, StatusCode: o.StatusCode})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	return out, nil
}

func (m *Store) PruneObservations(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for alias, obs := range m.observations {
		kept := obs[:0]
		for _, o := range obs {
			if o.ObservedAt.Before(before) {
				removed++
				continue
			}
			kept = append(kept, o)
		}
		m.observations[alias] = kept
	}
	return removed, nil
}
