package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeboard/internal/apperr"
	"github.com/hamed0406/uptimeboard/internal/repo"
	"github.com/hamed0406/uptimeboard/internal/repo/repotest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "uptime.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repo.Store { return newTestStore(t) })
}

func TestSQLiteStore_ReopenKeepsDataAndSkipsMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "uptime.db")

	s, err := New(ctx, path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.InsertSite(ctx, "https://example.com", "ex", repotest.Now))
	require.NoError(t, s.InsertObservation(ctx, "ex", 200, repotest.Now))
	require.NoError(t, s.Close())

	s, err = New(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "ex", sites[0].Alias)
}

func TestSQLiteStore_ForeignKeysEnforced(t *testing.T) {
	s := newTestStore(t)

	_, err := s.DB().Exec(`INSERT INTO logs (website_id, status, created_at) VALUES (999, 200, '2025-01-01 00:00:00.000')`)
	assert.Error(t, err, "orphan observation must be rejected")
}

func TestSQLiteStore_DeleteIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertSite(ctx, "https://example.com", "ex", repotest.Now))
	for i := 0; i < 25; i++ {
		require.NoError(t, s.InsertObservation(ctx, "ex", 500, repotest.Now.Add(-time.Duration(i)*time.Minute)))
	}

	// Fail the second statement of the delete transaction.
	_, err := s.DB().Exec(`CREATE TRIGGER fail_delete BEFORE DELETE ON websites
		WHEN OLD.alias = 'ex'
		BEGIN SELECT RAISE(ABORT, 'simulated fault'); END;`)
	require.NoError(t, err)

	err = s.DeleteSite(ctx, "ex")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.StoreFailure), "err=%v", err)

	assert.Equal(t, 1, count(t, s, "websites"))
	assert.Equal(t, 25, count(t, s, "logs"), "observations must survive a failed delete")

	_, err = s.DB().Exec(`DROP TRIGGER fail_delete`)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSite(ctx, "ex"))
	assert.Equal(t, 0, count(t, s, "websites"))
	assert.Equal(t, 0, count(t, s, "logs"))
}

func TestSQLiteStore_TimestampsStoredAsUTCText(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	local := time.Date(2025, 8, 18, 16, 5, 0, 0, time.FixedZone("CEST", 2*3600))
	require.NoError(t, s.InsertSite(ctx, "https://example.com", "ex", local))

	var raw string
	require.NoError(t, s.DB().QueryRow(`SELECT created_at FROM websites WHERE alias = 'ex'`).Scan(&raw))
	assert.Equal(t, "2025-08-18 14:05:00.000", raw)
}

func count(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}
