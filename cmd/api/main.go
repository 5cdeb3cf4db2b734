package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeboard/internal/config"
	"github.com/hamed0406/uptimeboard/internal/httpapi"
	"github.com/hamed0406/uptimeboard/internal/logging"
	"github.com/hamed0406/uptimeboard/internal/probe"
	"github.com/hamed0406/uptimeboard/internal/report"
	"github.com/hamed0406/uptimeboard/internal/scheduler"
)

type flags struct {
	configFile string
	addr       string
	store      string
	sqlitePath string
	pgURL      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "uptimeboard:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "uptimeboard",
		Short:         "Probe websites every minute and serve an uptime dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configFile)
			if err != nil {
				return err
			}
			applyFlags(cmd, f, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&f.configFile, "config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address (overrides API_ADDR)")
	cmd.Flags().StringVar(&f.store, "store", "", "backing store: sqlite, postgres or memory (overrides STORE)")
	cmd.Flags().StringVar(&f.sqlitePath, "sqlite", "", "SQLite database file; implies --store=sqlite")
	cmd.Flags().StringVar(&f.pgURL, "pg", "", "Postgres connection URL; implies --store=postgres")
	cmd.MarkFlagsMutuallyExclusive("sqlite", "pg")
	return cmd
}

// applyFlags gives explicitly set flags the last word.
func applyFlags(cmd *cobra.Command, f flags, cfg *config.Config) {
	if cmd.Flags().Changed("addr") {
		cfg.Addr = f.addr
	}
	if cmd.Flags().Changed("sqlite") {
		cfg.Store = config.StoreSQLite
		cfg.SQLitePath = f.sqlitePath
	}
	if cmd.Flags().Changed("pg") {
		cfg.Store = config.StorePostgres
		cfg.DatabaseURL = f.pgURL
	}
	if cmd.Flags().Changed("store") {
		cfg.Store = f.store
	}
}

func run(ctx context.Context, cfg config.Config) (err error) {
	logger, err := logging.NewLogger(cfg.LogDir,
		logging.WithLevel(cfg.LogLevel),
		logging.WithConsole(cfg.LogConsole),
	)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store_open_failed", zap.String("store", cfg.Store), zap.Error(err))
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	checker := &probe.RetryChecker{
		Inner:    probe.NewHTTPChecker(cfg.HTTPTimeout),
		Attempts: cfg.RetryAttempts,
		Backoff:  cfg.RetryBackoff,
	}
	prober := scheduler.NewProber(logger, store, store, checker, scheduler.ProberConfig{
		Interval:       cfg.CheckInterval,
		Timeout:        probeBudget(cfg),
		Concurrency:    cfg.MaxConcurrentChecks,
		RecordFailures: cfg.RecordProbeFailures,
		ListAttempts:   cfg.StoreRetryAttempts,
		ListBackoff:    cfg.StoreRetryBackoff,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	retention := scheduler.NewRetention(logger, store, cfg.RetentionMaxAge(), cfg.RetentionSchedule)
	if err := retention.Start(ctx); err != nil {
		return err
	}

	api := httpapi.NewServer(logger, store, report.NewBuilder(store))
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(httpapi.RouterOptions{
			WriteReqPerMin: cfg.WriteRPM,
			WriteBurst:     cfg.WriteBurst,
			CORSOrigins:    cfg.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	proberDone := make(chan struct{})
	go func() {
		defer close(proberDone)
		prober.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case runErr = <-serveErr:
		logger.Error("api_listen_failed", zap.Error(runErr))
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancelShutdown()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("http shutdown: %w", shutdownErr))
	}

	// The store is closed by a deferred call; give an in-flight tick a bounded
	// chance to finish its writes first.
	if !waitFor(shutdownCtx.Done(), proberDone, proberDrain) {
		logger.Warn("prober_shutdown_timeout", zap.Duration("extra_wait", proberDrain))
	}
	logger.Info("shutdown_complete")
	return runErr
}

// proberDrain is how long shutdown keeps waiting for the prober once the
// grace period is spent.
const proberDrain = 5 * time.Second

// waitFor reports whether done closed. It waits until expired fires and then
// for at most extra more.
func waitFor(expired <-chan struct{}, done <-chan struct{}, extra time.Duration) bool {
	select {
	case <-done:
		return true
	case <-expired:
	}
	t := time.NewTimer(extra)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// probeBudget bounds one site's probe including its retries.
func probeBudget(cfg config.Config) time.Duration {
	n := time.Duration(cfg.RetryAttempts)
	if n < 1 {
		n = 1
	}
	return n*cfg.HTTPTimeout + (n-1)*cfg.RetryBackoff
}
