// cmd/preflight/main.go
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"

	"github.com/hamed0406/uptimeboard/internal/config"
)

type level int

const (
	levelOK level = iota
	levelWarn
	levelFail
)

type finding struct {
	level level
	msg   string
}

// check inspects cfg without touching the network or the database.
func check(cfg config.Config) []finding {
	var out []finding
	ok := func(msg string) { out = append(out, finding{levelOK, msg}) }
	warn := func(msg string) { out = append(out, finding{levelWarn, msg}) }
	fail := func(msg string) { out = append(out, finding{levelFail, msg}) }

	if err := cfg.Validate(); err != nil {
		fail(err.Error())
	}

	switch cfg.Store {
	case config.StoreSQLite:
		dir := filepath.Dir(cfg.SQLitePath)
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			fail("SQLITE_PATH directory " + dir + " does not exist.")
		} else {
			ok("SQLITE_PATH=" + cfg.SQLitePath)
		}
	case config.StorePostgres:
		if cfg.DatabaseURL != "" {
			if _, err := pgx.ParseConfig(cfg.DatabaseURL); err != nil {
				fail("DATABASE_URL does not parse as a Postgres connection string.")
			} else {
				ok("DATABASE_URL present")
			}
		}
	case config.StoreMemory:
		warn("STORE=memory: registrations and history are lost on restart.")
	}

	if cfg.Addr == "" {
		warn("API_ADDR is empty; the server will listen on :http.")
	} else {
		ok("API_ADDR=" + cfg.Addr)
	}

	if cfg.CheckInterval == 0 {
		warn("CHECK_INTERVAL_MS=0: the prober is disabled and no data will be collected.")
	} else {
		ok("CHECK_INTERVAL=" + cfg.CheckInterval.String())
	}

	if cfg.RetentionDays > 0 {
		if _, err := cron.ParseStandard(cfg.RetentionSchedule); err != nil {
			fail("RETENTION_SCHEDULE " + cfg.RetentionSchedule + " is not a valid cron spec.")
		} else {
			ok(fmt.Sprintf("retention: %d days on %s", cfg.RetentionDays, cfg.RetentionSchedule))
		}
	}

	if len(cfg.CORSOrigins) == 0 {
		warn("CORS_ORIGINS empty: /api allows any origin.")
	} else {
		ok("CORS_ORIGINS=" + strings.Join(cfg.CORSOrigins, ","))
	}
	return out
}

func report(w, errw io.Writer, findings []finding) bool {
	passed := true
	for _, f := range findings {
		switch f.level {
		case levelOK:
			fmt.Fprintln(w, "✔", f.msg)
		case levelWarn:
			fmt.Fprintln(errw, "⚠", f.msg)
		case levelFail:
			fmt.Fprintln(errw, "✖", f.msg)
			passed = false
		}
	}
	return passed
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "✖", err)
		os.Exit(1)
	}
	if !report(os.Stdout, os.Stderr, check(cfg)) {
		os.Exit(1)
	}
	fmt.Println("✔ preflight passed")
}
