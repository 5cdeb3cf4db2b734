package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeboard/internal/config"
	"github.com/hamed0406/uptimeboard/internal/repo/memory"
	"github.com/hamed0406/uptimeboard/internal/repo/sqlite"
)

func TestApplyFlags_Precedence(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.Flags().Parse([]string{"--addr", ":9999", "--pg", "postgres://u:p@db/x"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := config.Defaults()
	cfg.Addr = ":1111" // as if from env

	var f flags
	f.addr, _ = cmd.Flags().GetString("addr")
	f.pgURL, _ = cmd.Flags().GetString("pg")
	applyFlags(cmd, f, &cfg)

	if cfg.Addr != ":9999" {
		t.Fatalf("flag must beat env, got %q", cfg.Addr)
	}
	if cfg.Store != config.StorePostgres || cfg.DatabaseURL != "postgres://u:p@db/x" {
		t.Fatalf("--pg must select postgres: %q %q", cfg.Store, cfg.DatabaseURL)
	}
}

func TestApplyFlags_UnsetFlagsKeepConfig(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.Flags().Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := config.Defaults()
	cfg.Store = config.StoreMemory
	applyFlags(cmd, flags{}, &cfg)
	if cfg.Store != config.StoreMemory || cfg.Addr != config.Defaults().Addr {
		t.Fatalf("unset flags must not override: %+v", cfg)
	}
}

func TestRootCmd_FlagFixesInvalidEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("API_ADDR", "127.0.0.1:0")
	t.Setenv("LOG_DIR", dir)
	t.Setenv("CHECK_INTERVAL_MS", "0")
	dbPath := filepath.Join(dir, "x.db")

	// An already-cancelled context makes run shut down right after startup.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--sqlite", dbPath})
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatalf("--sqlite must override STORE=postgres from env: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("sqlite database not created: %v", err)
	}
}

func TestRootCmd_InvalidConfigStillRejected(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_DIR", t.TempDir())

	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("want validation error without a flag to fix it")
	}
}

func TestProbeBudget(t *testing.T) {
	cfg := config.Defaults()
	cfg.HTTPTimeout = 10 * time.Second
	cfg.RetryBackoff = 300 * time.Millisecond
	cfg.RetryAttempts = 2
	if got := probeBudget(cfg); got != 20*time.Second+300*time.Millisecond {
		t.Fatalf("probeBudget=%s", got)
	}
	cfg.RetryAttempts = 0
	if got := probeBudget(cfg); got != 10*time.Second {
		t.Fatalf("probeBudget with no retries=%s", got)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	cfg := config.Defaults()
	cfg.Store = config.StoreMemory
	s, err := openStore(ctx, cfg, log)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Fatalf("want *memory.Store, got %T", s)
	}

	cfg.Store = config.StoreSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "open.db")
	s, err = openStore(ctx, cfg, log)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*sqlite.Store); !ok {
		t.Fatalf("want *sqlite.Store, got %T", s)
	}

	cfg.Store = "mongo"
	if _, err := openStore(ctx, cfg, log); err == nil {
		t.Fatalf("want error for unknown store")
	}
}

func TestWaitFor(t *testing.T) {
	expired := make(chan struct{})
	close(expired)

	done := make(chan struct{})
	time.AfterFunc(20*time.Millisecond, func() { close(done) })
	if !waitFor(expired, done, 2*time.Second) {
		t.Fatalf("a prober finishing within the extra wait must be awaited")
	}

	never := make(chan struct{})
	start := time.Now()
	if waitFor(expired, never, 30*time.Millisecond) {
		t.Fatalf("want false when the prober never finishes")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("extra wait not bounded: %s", time.Since(start))
	}

	closed := make(chan struct{})
	close(closed)
	if !waitFor(make(chan struct{}), closed, 0) {
		t.Fatalf("want true when the prober is already done")
	}
}
