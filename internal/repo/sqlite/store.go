package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/uptimeboard/internal/apperr"
	"github.com/hamed0406/uptimeboard/internal/domain"
	"github.com/hamed0406/uptimeboard/internal/repo"
	"github.com/hamed0406/uptimeboard/internal/repo/migrations"
	"github.com/hamed0406/uptimeboard/internal/urlutil"
)

var _ repo.Store = (*Store)(nil)

// Timestamps are stored as UTC text in this layout. It sorts lexically and
// is understood by SQLite's date functions.
const timeLayout = "2006-01-02 15:04:05.000"

const bucketLayout = "2006-01-02 15:04:05"

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens (creating if needed) the database file at path and brings the
// schema up to date.
func New(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; transactions hold the only connection.
	db.SetMaxOpenConns(1)

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctxPing); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrations.UpSQLite(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("sqlite store ready", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the handle for tests that need to inspect or sabotage the schema.
func (s *Store) DB() *sql.DB { return s.db }

// ---- SiteStore ----

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, alias, created_at
		   FROM websites
		  ORDER BY created_at, id`)
	if err != nil {
		return nil, apperr.NewStoreFailure("list sites", err)
	}
	defer rows.Close()

	out := make([]domain.Site, 0)
	for rows.Next() {
		var (
			site      domain.Site
			createdAt string
		)
		if err := rows.Scan(&site.URL, &site.Alias, &createdAt); err != nil {
			return nil, apperr.NewStoreFailure("scan site", err)
		}
		if site.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, apperr.NewStoreFailure("scan site", err)
		}
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

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO websites (url, alias, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(alias) DO NOTHING`,
		normalized, alias, formatTime(createdAt))
	if err != nil {
		return apperr.NewStoreFailure("insert site", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.NewStoreFailure("insert site", err)
	}
	if n == 0 {
		return apperr.NewConflict("alias already registered", map[string]any{"alias": alias})
	}
	return nil
}

func (s *Store) GetSite(ctx context.Context, alias string) (domain.Site, error) {
	var (
		site      domain.Site
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT url, alias, created_at FROM websites WHERE alias = ?`, alias).
		Scan(&site.URL, &site.Alias, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Site{}, apperr.NewNotFound("site not found", map[string]any{"alias": alias})
	}
	if err != nil {
		return domain.Site{}, apperr.NewStoreFailure("get site", err)
	}
	if site.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Site{}, apperr.NewStoreFailure("get site", err)
	}
	return site, nil
}

func (s *Store) DeleteSite(ctx context.Context, alias string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.NewStoreFailure("delete site", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM logs
		  WHERE website_id IN (SELECT id FROM websites WHERE alias = ?)`, alias); err != nil {
		return apperr.NewStoreFailure("delete observations", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM websites WHERE alias = ?`, alias)
	if err != nil {
		return apperr.NewStoreFailure("delete site", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.NewStoreFailure("delete site", err)
	}
	if n == 0 {
		return apperr.NewNotFound("site not found", map[string]any{"alias": alias})
	}
	if err := tx.Commit(); err != nil {
		return apperr.NewStoreFailure("delete site", err)
	}
	return nil
}

// ---- ObservationStore ----

func (s *Store) InsertObservation(ctx context.Context, alias string, status int, observedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (website_id, status, created_at)
		 SELECT id, ?, ? FROM websites WHERE alias = ?`,
		status, formatTime(observedAt), alias)
	if err != nil {
		return apperr.NewStoreFailure("insert observation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.NewStoreFailure("insert observation", err)
	}
	if n == 0 {
		return apperr.NewNotFound("site not found", map[string]any{"alias": alias})
	}
	return nil
}

const (
	hourlyStatsSQL = `
SELECT strftime('%Y-%m-%d %H:00:00', l.created_at) AS bucket,
       CAST(COUNT(CASE WHEN l.status = 200 THEN 1 END) * 100 / COUNT(*) AS INTEGER) AS uptime_pct
  FROM logs l
  JOIN websites w ON w.id = l.website_id
 WHERE w.alias = ? AND l.created_at >= ?
 GROUP BY bucket
 ORDER BY bucket ASC
 LIMIT ?`

	dailyStatsSQL = `
SELECT strftime('%Y-%m-%d 00:00:00', l.created_at) AS bucket,
       CAST(COUNT(CASE WHEN l.status = 200 THEN 1 END) * 100 / COUNT(*) AS INTEGER) AS uptime_pct
  FROM logs l
  JOIN websites w ON w.id = l.website_id
 WHERE w.alias = ? AND l.created_at >= ?
 GROUP BY bucket
 ORDER BY bucket ASC
 LIMIT ?`
)

func (s *Store) BucketedStats(ctx context.Context, alias string, g domain.Granularity, since time.Time, limit int) ([]domain.Bucket, error) {
	query := hourlyStatsSQL
	if g == domain.Daily {
		query = dailyStatsSQL
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, query, alias, formatTime(since), limit)
	if err != nil {
		return nil, apperr.NewStoreFailure("bucketed stats", err)
	}
	defer rows.Close()

	out := make([]domain.Bucket, 0)
	for rows.Next() {
		var (
			bucket string
			pct    int
		)
		if err := rows.Scan(&bucket, &pct); err != nil {
			return nil, apperr.NewStoreFailure("scan bucket", err)
		}
		start, err := time.Parse(bucketLayout, bucket)
		if err != nil {
			return nil, apperr.NewStoreFailure("scan bucket", err)
		}
		p := pct
		out = append(out, domain.Bucket{Start: start, UptimePct: &p})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.NewStoreFailure("bucketed stats", err)
	}
	return out, nil
}

func (s *Store) Incidents(ctx context.Context, alias string) ([]domain.Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.created_at, l.status
		   FROM logs l
		   JOIN websites w ON w.id = l.website_id
		  WHERE w.alias = ? AND l.status <> 200
		  ORDER BY l.created_at DESC, l.id DESC`, alias)
	if err != nil {
		return nil, apperr.NewStoreFailure("incidents", err)
	}
	defer rows.Close()

	out := make([]domain.Incident, 0)
	for rows.Next() {
		var (
			inc        domain.Incident
			observedAt string
		)
		if err := rows.Scan(&observedAt, &inc.StatusCode); err != nil {
			return nil, apperr.NewStoreFailure("scan incident", err)
		}
		if inc.ObservedAt, err = parseTime(observedAt); err != nil {
			return nil, apperr.NewStoreFailure("scan incident", err)
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.NewStoreFailure("incidents", err)
	}
	return out, nil
}

func (s *Store) PruneObservations(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, apperr.NewStoreFailure("prune observations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.NewStoreFailure("prune observations", err)
	}
	return n, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }
