package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeboard/internal/apperr"
	"github.com/hamed0406/uptimeboard/internal/domain"
	"github.com/hamed0406/uptimeboard/internal/repo"
	"github.com/hamed0406/uptimeboard/internal/repo/migrations"
	"github.com/hamed0406/uptimeboard/internal/urlutil"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := migrate(dsn); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("postgres store ready",
		zap.String("host", pool.Config().ConnConfig.Host),
		zap.String("database", pool.Config().ConnConfig.Database))
	return &Store{pool: pool, log: log}, nil
}

// migrate runs on its own database/sql handle so that golang-migrate's
// driver can be closed without touching the pool.
func migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()
	return migrations.UpPostgres(db)
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ---- SiteStore ----

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT url, alias, created_at
		   FROM websites
		  ORDER BY created_at, id`)
	if err != nil {
		return nil, apperr.NewStoreFailure("list sites", err)
	}
	defer rows.Close()

	out := make([]domain.Site, 0)
	for rows.Next() {
		var site domain.Site
		if err := rows.Scan(&site.URL, &site.Alias, &site.CreatedAt); err != nil {
			return nil, apperr.NewStoreFailure("scan site", err)
		}
		site.CreatedAt = site.CreatedAt.UTC()
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.NewStoreFailure("list sites", err)
	}
	return out, nil
}

func (s *Store) InsertSite(ctx context.Context, url, alias string, createdAt time.Time) error {
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

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO websites (url, alias, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (alias) DO NOTHING`,
		normalized, alias, createdAt.UTC())
	if err != nil {
		return apperr.NewStoreFailure("insert site", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewConflict("alias already registered", map[string]any{"alias": alias})
	}
	return nil
}

func (s *Store) GetSite(ctx context.Context, alias string) (domain.Site, error) {
	var site domain.Site
	err := s.pool.QueryRow(ctx,
		`SELECT url, alias, created_at FROM websites WHERE alias = $1`, alias).
		Scan(&site.URL, &site.Alias, &site.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Site{}, apperr.NewNotFound("site not found", map[string]any{"alias": alias})
	}
	if err != nil {
		return domain.Site{}, apperr.NewStoreFailure("get site", err)
	}
	site.CreatedAt = site.CreatedAt.UTC()
	return site, nil
}

func (s *Store) DeleteSite(ctx context.Context, alias string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.NewStoreFailure("delete site", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM logs
		  WHERE website_id IN (SELECT id FROM websites WHERE alias = $1)`, alias); err != nil {
		return apperr.NewStoreFailure("delete observations", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM websites WHERE alias = $1`, alias)
	if err != nil {
		return apperr.NewStoreFailure("delete site", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewNotFound("site not found", map[string]any{"alias": alias})
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.NewStoreFailure("delete site", err)
	}
	return nil
}

// ---- ObservationStore ----

func (s *Store) InsertObservation(ctx context.Context, alias string, status int, observedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO logs (website_id, status, created_at)
		 SELECT id, $2::integer, $3::timestamptz FROM websites WHERE alias = $1`,
		alias, status, observedAt.UTC())
	if err != nil {
		return apperr.NewStoreFailure("insert observation", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewNotFound("site not found", map[string]any{"alias": alias})
	}
	return nil
}

const (
	hourlyStatsSQL = `
SELECT date_trunc('hour', l.created_at AT TIME ZONE 'UTC') AS bucket,
       (COUNT(*) FILTER (WHERE l.status = 200) * 100 / COUNT(*))::int AS uptime_pct
  FROM logs l
  JOIN websites w ON w.id = l.website_id
 WHERE w.alias = $1 AND l.created_at >= $2
 GROUP BY bucket
 ORDER BY bucket ASC
 LIMIT $3`

	dailyStatsSQL = `
SELECT date_trunc('day', l.created_at AT TIME ZONE 'UTC') AS bucket,
       (COUNT(*) FILTER (WHERE l.status = 200) * 100 / COUNT(*))::int AS uptime_pct
  FROM logs l
  JOIN websites w ON w.id = l.website_id
 WHERE w.alias = $1 AND l.created_at >= $2
 GROUP BY bucket
 ORDER BY bucket ASC
 LIMIT $3`
)

func (s *Store) BucketedStats(ctx context.Context, alias string, g domain.Granularity, since time.Time, limit int) ([]domain.Bucket, error) {
	query := hourlyStatsSQL
	if g == domain.Daily {
		query = dailyStatsSQL
	}
	var lim *int // NULL means no limit
	if limit > 0 {
		lim = &limit
	}

	rows, err := s.pool.Query(ctx, query, alias, since.UTC(), lim)
	if err != nil {
		return nil, apperr.NewStoreFailure("bucketed stats", err)
	}
	defer rows.Close()

	out := make([]domain.Bucket, 0)
	for rows.Next() {
		var (
			start time.Time
			pct   int
		)
		if err := rows.Scan(&start, &pct); err != nil {
			return nil, apperr.NewStoreFailure("scan bucket", err)
		}
		p := pct
		out = append(out, domain.Bucket{Start: start.UTC(), UptimePct: &p})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.NewStoreFailure("bucketed stats", err)
	}
	return out, nil
}

func (s *Store) Incidents(ctx context.Context, alias string) ([]domain.Incident, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT l.created_at, l.status
		   FROM logs l
		   JOIN websites w ON w.id = l.website_id
		  WHERE w.alias = $1 AND l.status <> 200
		  ORDER BY l.created_at DESC, l.id DESC`, alias)
	if err != nil {
		return nil, apperr.NewStoreFailure("incidents", err)
	}
	defer rows.Close()

	out := make([]domain.Incident, 0)
	for rows.Next() {
		var inc domain.Incident
		if err := rows.Scan(&inc.ObservedAt, &inc.StatusCode); err != nil {
			return nil, apperr.NewStoreFailure("scan incident", err)
		}
		inc.ObservedAt = inc.ObservedAt.UTC()
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.NewStoreFailure("incidents", err)
	}
	return out, nil
}

func (s *Store) PruneObservations(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM logs WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, apperr.NewStoreFailure("prune observations", err)
	}
	return tag.RowsAffected(), nil
}
