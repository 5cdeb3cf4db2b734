package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/uptimeboard/internal/apperr"
	"github.com/hamed0406/uptimeboard/internal/domain"
	"github.com/hamed0406/uptimeboard/internal/probe"
	"github.com/hamed0406/uptimeboard/internal/repo"
)

type ProberConfig struct {
	Interval    time.Duration
	Timeout     time.Duration
	Concurrency int
	// RecordFailures stores StatusRequestFailed when no response arrived.
	RecordFailures bool
	// ListAttempts and ListBackoff control retries of ListSites within a tick.
	ListAttempts int
	ListBackoff  time.Duration
}

// TickReport summarises one pass over all sites.
type TickReport struct {
	Sites         int
	Probed        int
	Recorded      int
	ProbeFailures int
	WriteFailures int
	Skipped       bool
}

type Prober struct {
	Logger   *zap.Logger
	Sites    repo.SiteStore
	Results  repo.ObservationStore
	Checker  probe.Checker
	Diagnose func(ctx context.Context, target string) probe.DNSStatus
	Now      func() time.Time
	cfg      ProberConfig
}

func NewProber(
	logger *zap.Logger,
	sites repo.SiteStore,
	results repo.ObservationStore,
	checker probe.Checker,
	cfg ProberConfig,
) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ListAttempts < 1 {
		cfg.ListAttempts = 1
	}
	return &Prober{
		Logger:   logger,
		Sites:    sites,
		Results:  results,
		Checker:  checker,
		Diagnose: probe.Diagnose,
		Now:      time.Now,
		cfg:      cfg,
	}
}

// Run starts the loop. It does an immediate pass, then runs each tick.
// Stops when ctx is cancelled; a tick in flight sees the same ctx.
func (p *Prober) Run(ctx context.Context) {
	if p.cfg.Interval == 0 {
		// disabled
		p.Logger.Info("prober_disabled")
		return
	}
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()

	// immediate pass
	p.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			p.Logger.Info("prober_stopped")
			return
		case <-t.C:
			p.Tick(ctx)
		}
	}
}

// Tick probes every registered site once. Failures are counted and logged,
// never returned: one bad site or one failed write does not affect others.
func (p *Prober) Tick(ctx context.Context) TickReport {
	var rep TickReport

	sites, err := p.listSites(ctx)
	if err != nil {
		rep.Skipped = true
		p.Logger.Warn("prober_tick_skipped", zap.Error(err))
		return rep
	}
	rep.Sites = len(sites)
	if len(sites) == 0 {
		return rep
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, s := range sites {
		site := s
		g.Go(func() error {
			probed, recorded, probeFailed, writeFailed := p.probeOne(gctx, site)
			mu.Lock()
			defer mu.Unlock()
			if probed {
				rep.Probed++
			}
			if recorded {
				rep.Recorded++
			}
			if probeFailed {
				rep.ProbeFailures++
			}
			if writeFailed {
				rep.WriteFailures++
			}
			return nil
		})
	}
	_ = g.Wait()

	p.Logger.Info("prober_tick",
		zap.Int("sites", rep.Sites),
		zap.Int("probed", rep.Probed),
		zap.Int("recorded", rep.Recorded),
		zap.Int("probe_failures", rep.ProbeFailures),
		zap.Int("write_failures", rep.WriteFailures),
	)
	return rep
}

func (p *Prober) probeOne(ctx context.Context, site domain.Site) (probed, recorded, probeFailed, writeFailed bool) {
	if ctx.Err() != nil {
		return false, false, false, false
	}
	observedAt := p.Now().UTC()

	cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	out := p.Checker.Check(cctx, site.URL)
	cancel()
	probed = true

	if out.RequestFailed() {
		probeFailed = true
		fields := []zap.Field{
			zap.String("alias", site.Alias),
			zap.String("url", site.URL),
			zap.Float64("latency_ms", out.LatencyMS),
			zap.String("reason", out.Message),
			zap.Error(apperr.NewProbeFailure(site.URL, out.Err)),
		}
		if ctx.Err() == nil && p.Diagnose != nil {
			dns := p.Diagnose(ctx, site.URL)
			fields = append(fields,
				zap.String("dns_class", dns.Class),
				zap.Strings("nameservers", dns.Nameservers),
			)
		}
		p.Logger.Warn("prober_request_failed", fields...)
		if !p.cfg.RecordFailures {
			return
		}
	}

	if err := p.Results.InsertObservation(ctx, site.Alias, out.StatusCode, observedAt); err != nil {
		writeFailed = true
		p.Logger.Warn("prober_append_error",
			zap.String("alias", site.Alias),
			zap.String("url", site.URL),
			zap.Error(err),
		)
		return
	}
	recorded = true
	p.Logger.Debug("prober_checked",
		zap.String("alias", site.Alias),
		zap.String("url", site.URL),
		zap.Int("status", out.StatusCode),
		zap.Bool("up", out.Up()),
		zap.Float64("latency_ms", out.LatencyMS),
		zap.String("reason", out.Message),
	)
	return
}

// listSites retries with exponential backoff: ListBackoff, 2x, 4x, ...
func (p *Prober) listSites(ctx context.Context) ([]domain.Site, error) {
	backoff := p.cfg.ListBackoff
	var err error
	for attempt := 1; ; attempt++ {
		var sites []domain.Site
		sites, err = p.Sites.ListSites(ctx)
		if err == nil {
			return sites, nil
		}
		if attempt >= p.cfg.ListAttempts {
			return nil, err
		}
		p.Logger.Warn("prober_list_error",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
