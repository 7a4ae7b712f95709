package listing

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Processor runs the batch pass: reconcile and gate every bag in parallel,
// then fill gaps for known entities with estimates and aggregate.
type Processor struct {
	engine   *Engine
	fallback *Fallback
	workers  int
}

func NewProcessor(engine *Engine, fallback *Fallback, workers int) *Processor {
	if engine == nil {
		engine = NewEngine()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Processor{engine: engine, fallback: fallback, workers: workers}
}

type slot struct {
	listing NormalizedListing
	err     error
	done    bool
}

// Run never fails as a whole. Per-listing problems end up in Report.Rejections.
// Cancelling ctx stops scheduling; bags that never started are rejected with
// ReasonProcessingFailure.
func (p *Processor) Run(ctx context.Context, bags []SignalBag, cfg RunConfig) Report {
	gate := Gate{MinDiscount: cfg.MinDiscountThreshold}
	slots := make([]slot, len(bags))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range bags {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			slots[i] = p.process(bags[i], gate)
			return nil
		})
	}
	_ = g.Wait()

	var report Report
	accepted := make([]NormalizedListing, 0, len(bags))
	realKeys := make(map[string]struct{}, len(bags))
	for i, s := range slots {
		if !s.done {
			s.err = &Rejection{
				IdentityKey: bags[i].IdentityKey,
				Reason:      ReasonProcessingFailure,
				Detail:      notProcessed(ctx),
			}
		}
		if s.err != nil {
			report.Rejections = append(report.Rejections, asRejection(bags[i].IdentityKey, s.err))
			continue
		}
		accepted = append(accepted, s.listing)
		realKeys[s.listing.IdentityKey] = struct{}{}
	}

	if p.fallback != nil {
		for _, ent := range cfg.KnownEntities {
			key := strings.TrimSpace(ent.IdentityKey)
			if key == "" {
				continue
			}
			if _, ok := realKeys[key]; ok {
				continue
			}
			accepted = append(accepted, p.fallback.Generate(key, ent.Category, ent.FallbackURL, cfg.FallbackDiscountRange))
			realKeys[key] = struct{}{}
		}
	}

	report.Listings = Aggregate(accepted)
	report.Duplicates = len(accepted) - len(report.Listings)
	report.Rejected = len(report.Rejections)
	for _, l := range report.Listings {
		if l.Provenance.Real() {
			report.Accepted++
		} else {
			report.Estimated++
		}
	}
	return report
}

func (p *Processor) process(bag SignalBag, gate Gate) (s slot) {
	s.done = true
	defer func() {
		if r := recover(); r != nil {
			s.listing = NormalizedListing{}
			s.err = &Rejection{
				IdentityKey: bag.IdentityKey,
				Reason:      ReasonProcessingFailure,
				Detail:      fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	c := p.engine.Reconcile(bag)
	if err := gate.Check(c); err != nil {
		s.err = err
		return s
	}
	s.listing = c.Listing
	return s
}

func notProcessed(ctx context.Context) string {
	if err := context.Cause(ctx); err != nil {
		return "not processed: " + err.Error()
	}
	return "not processed"
}

func asRejection(key string, err error) Rejection {
	if r, ok := err.(*Rejection); ok {
		return *r
	}
	return Rejection{IdentityKey: key, Reason: ReasonProcessingFailure, Detail: err.Error()}
}
