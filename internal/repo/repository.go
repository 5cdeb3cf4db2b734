package repo

import (
	"context"
	"time"

	"github.com/hamed0406/uptimeboard/internal/domain"
)

// Ports (interfaces). Every engine implements all of them with the same
// logical results. Errors are *apperr.Error: Validation, Conflict, NotFound
// or StoreFailure.
type SiteStore interface {
	// ListSites returns every registered site ordered by creation.
	ListSites(ctx context.Context) ([]domain.Site, error)
	// InsertSite validates url and alias before writing anything.
	InsertSite(ctx context.Context, url, alias string, createdAt time.Time) error
	GetSite(ctx context.Context, alias string) (domain.Site, error)
	// DeleteSite removes the site and all of its observations in one
	// transaction.
	DeleteSite(ctx context.Context, alias string) error
}

type ObservationStore interface {
	// InsertObservation appends one row. NotFound if the alias is gone.
	InsertObservation(ctx context.Context, alias string, status int, observedAt time.Time) error
	// BucketedStats groups observations at or after since into buckets of
	// granularity g and returns at most limit rows, oldest first.
	BucketedStats(ctx context.Context, alias string, g domain.Granularity, since time.Time, limit int) ([]domain.Bucket, error)
	// Incidents returns the non-200 observations of a site, newest first.
	Incidents(ctx context.Context, alias string) ([]domain.Incident, error)
	// PruneObservations deletes observations older than before and returns
	// how many were removed.
	PruneObservations(ctx context.Context, before time.Time) (int64, error)
}

type Store interface {
	SiteStore
	ObservationStore
	Close() error
}
