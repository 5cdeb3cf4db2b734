package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/hamed0406/uptimeboard/internal/repo"
	"github.com/hamed0406/uptimeboard/internal/repo/repotest"
)

func TestMemoryStore_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repo.Store { return New() })
}

func TestMemoryStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.InsertSite(ctx, "https://example.com", "ex", repotest.Now); err != nil {
		t.Fatalf("InsertSite: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.InsertObservation(ctx, "ex", 500, repotest.Now); err != nil {
				t.Errorf("InsertObservation: %v", err)
			}
		}()
	}
	wg.Wait()

	inc, err := s.Incidents(ctx, "ex")
	if err != nil {
		t.Fatalf("Incidents: %v", err)
	}
	if len(inc) != 50 {
		t.Fatalf("expected 50 incidents, got %d", len(inc))
	}
}
