package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/baxromumarov/sale-hunter/internal/observability"
)

// ListingPruner is satisfied by *store.Store.
type ListingPruner interface {
	DeleteOldListings(ctx context.Context, olderThan time.Duration) (int64, error)
}

type SchedulerService struct {
	store     ListingPruner
	interval  time.Duration
	retention time.Duration
}

func NewSchedulerService(store ListingPruner, interval, retention time.Duration) *SchedulerService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &SchedulerService{store: store, interval: interval, retention: retention}
}

func (s *SchedulerService) Start(ctx context.Context) {
	go s.runRetentionPolicy(ctx)
}

// runRetentionPolicy deletes listings no run has refreshed within the
// retention window.
func (s *SchedulerService) runRetentionPolicy(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(ctx)
		}
	}
}

func (s *SchedulerService) cleanup(ctx context.Context) int64 {
	count, err := s.store.DeleteOldListings(ctx, s.retention)
	if err != nil {
		observability.IncError(observability.ErrorStore, "retention")
		slog.Error("retention policy failed to delete old listings", "error", err)
		return 0
	}
	if count > 0 {
		slog.Info("retention policy deleted old listings", "count", count)
	}
	return count
}
