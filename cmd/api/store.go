package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeboard/internal/config"
	"github.com/hamed0406/uptimeboard/internal/repo"
	"github.com/hamed0406/uptimeboard/internal/repo/memory"
	pg "github.com/hamed0406/uptimeboard/internal/repo/postgres"
	"github.com/hamed0406/uptimeboard/internal/repo/sqlite"
)

// openStore connects the configured engine and applies its migrations.
// Nothing is served until this returns without error.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := sqlite.New(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("sqlite store at %s: %w", cfg.SQLitePath, err)
		}
		return s, nil
	case config.StorePostgres:
		s, err := pg.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			// the DSN may carry credentials; keep it out of the message
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return s, nil
	case config.StoreMemory:
		log.Warn("memory_store_in_use", zap.String("note", "data is lost on restart"))
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
