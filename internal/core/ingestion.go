package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/baxromumarov/sale-hunter/internal/listing"
	"github.com/baxromumarov/sale-hunter/internal/observability"
	"github.com/baxromumarov/sale-hunter/internal/scraper"
)

var ErrRunInProgress = errors.New("a monitor run is already in progress")

// ListingStore persists run results. *store.Store satisfies it.
type ListingStore interface {
	SaveRun(ctx context.Context, startedAt, finishedAt time.Time, report listing.Report) (int64, error)
	SaveListings(ctx context.Context, runID int64, listings []listing.NormalizedListing) (int, error)
}

// EntityResolver fills in sale pages for known entities before the fallback
// runs. *discovery.SaleURLFinder satisfies it.
type EntityResolver interface {
	Resolve(ctx context.Context, entities []listing.KnownEntity) []listing.KnownEntity
}

type MonitorConfig struct {
	Run       listing.RunConfig
	Affiliate Affiliate
	Interval  time.Duration
	Timeout   time.Duration
}

// RunResult is the outcome of one monitor pass.
type RunResult struct {
	RunID           int64             `json:"run_id,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	Report          listing.Report    `json:"report"`
	CollectorErrors map[string]string `json:"collector_errors,omitempty"`
	AlertsSent      int               `json:"alerts_sent"`
}

// MonitorService collects signal bags from every retailer, runs the batch
// pass over them and hands the result to storage and alerting.
type MonitorService struct {
	collectors []scraper.Collector
	processor  *listing.Processor
	store      ListingStore
	alerts     *AlertService
	resolver   EntityResolver
	cfg        MonitorConfig

	running atomic.Bool
	mu      sync.RWMutex
	last    *RunResult
}

type MonitorOption func(*MonitorService)

func WithStore(s ListingStore) MonitorOption {
	return func(m *MonitorService) { m.store = s }
}

func WithAlerts(a *AlertService) MonitorOption {
	return func(m *MonitorService) { m.alerts = a }
}

func WithResolver(r EntityResolver) MonitorOption {
	return func(m *MonitorService) { m.resolver = r }
}

func NewMonitorService(collectors []scraper.Collector, processor *listing.Processor, cfg MonitorConfig, opts ...MonitorOption) *MonitorService {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	m := &MonitorService{
		collectors: collectors,
		processor:  processor,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (s *MonitorService) Start(ctx context.Context) {
	go s.scrapeLoop(ctx, s.cfg.Interval)
}

func (s *MonitorService) scrapeLoop(ctx context.Context, interval time.Duration) {
	s.scrapeOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scrapeOnce(ctx)
		}
	}
}

func (s *MonitorService) scrapeOnce(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		slog.Error("monitor run failed", "error", err)
		return
	}
	slog.Info("monitor run complete",
		"run_id", res.RunID,
		"accepted", res.Report.Accepted,
		"estimated", res.Report.Estimated,
		"rejected", res.Report.Rejected,
		"duplicates", res.Report.Duplicates,
		"seconds", res.FinishedAt.Sub(res.StartedAt).Seconds(),
	)
}

// LastRun returns the most recent completed run, if any.
func (s *MonitorService) LastRun() (RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return RunResult{}, false
	}
	return *s.last, true
}

// RunOnce performs a full pass. Only one pass runs at a time; a concurrent
// call gets ErrRunInProgress. Collector failures are recorded in the result
// and never abort the pass. A storage failure is returned together with the
// otherwise complete result. cfg.Timeout bounds collection and sale-page
// discovery; processing and persistence run to completion.
func (s *MonitorService) RunOnce(ctx context.Context) (RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunResult{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	// The timeout bounds network work only. Bags that made it back before
	// the deadline are always processed.
	fetchCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	res := RunResult{StartedAt: time.Now()}

	bags, collectErrs := s.collect(fetchCtx)
	res.CollectorErrors = collectErrs
	observability.ObserveRunDuration("collect", time.Since(res.StartedAt).Seconds())

	for i := range bags {
		s.prepare(&bags[i])
	}

	runCfg := s.cfg.Run
	if s.resolver != nil {
		runCfg.KnownEntities = s.resolver.Resolve(fetchCtx, runCfg.KnownEntities)
	}

	processStart := time.Now()
	res.Report = s.processor.Run(ctx, bags, runCfg)
	observability.ObserveRunDuration("process", time.Since(processStart).Seconds())
	s.record(res.Report)

	res.FinishedAt = time.Now()
	observability.ObserveRunDuration("run", res.FinishedAt.Sub(res.StartedAt).Seconds())

	var errs []error
	if s.store != nil {
		if err := s.persist(ctx, &res); err != nil {
			observability.IncError(observability.ErrorStore, "monitor")
			errs = append(errs, err)
		}
	}
	if s.alerts != nil {
		sent, err := s.alerts.Evaluate(ctx, res.Report.Listings)
		res.AlertsSent = sent
		if err != nil {
			slog.Warn("alert evaluation failed", "error", err)
		}
	}

	s.mu.Lock()
	last := res
	s.last = &last
	s.mu.Unlock()

	return res, errors.Join(errs...)
}

// collect runs every collector concurrently. Results keep collector order so
// that a run over the same pages is reproducible.
func (s *MonitorService) collect(ctx context.Context) ([]listing.SignalBag, map[string]string) {
	results := make([][]listing.SignalBag, len(s.collectors))
	failures := make([]error, len(s.collectors))

	var g errgroup.Group
	for i, c := range s.collectors {
		g.Go(func() error {
			start := time.Now()
			bags, err := c.Collect(ctx)
			results[i], failures[i] = bags, err
			slog.Info("collector finished", "collector", c.Name(), "bags", len(bags), "seconds", time.Since(start).Seconds())
			return nil
		})
	}
	_ = g.Wait()

	var (
		bags []listing.SignalBag
		errs map[string]string
	)
	for i, c := range s.collectors {
		bags = append(bags, results[i]...)
		if failures[i] != nil {
			if errs == nil {
				errs = make(map[string]string)
			}
			errs[c.Name()] = failures[i].Error()
			slog.Warn("collector reported errors", "collector", c.Name(), "error", failures[i])
		}
	}
	return bags, errs
}

// prepare applies the cross-retailer conventions to a bag before
// reconciliation: one name per category and affiliate links.
func (s *MonitorService) prepare(bag *listing.SignalBag) {
	if bag.Category != nil {
		c := NormalizeCategory(*bag.Category)
		bag.Category = &c
	}
	bag.SourceURL = s.cfg.Affiliate.Decorate(strings.TrimSpace(bag.SourceURL))
}

func (s *MonitorService) record(report listing.Report) {
	observability.AddListings(report.Accepted, report.Rejected, report.Estimated)
	for _, r := range report.Rejections {
		observability.IncRejection(string(r.Reason))
	}
}

func (s *MonitorService) persist(ctx context.Context, res *RunResult) error {
	// Persist even when the run itself timed out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	runID, err := s.store.SaveRun(ctx, res.StartedAt, res.FinishedAt, res.Report)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	res.RunID = runID

	if _, err := s.store.SaveListings(ctx, runID, res.Report.Listings); err != nil {
		return fmt.Errorf("save listings: %w", err)
	}
	return nil
}
