package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/baxromumarov/sale-hunter/internal/listing"
	"github.com/baxromumarov/sale-hunter/internal/observability"
	"github.com/baxromumarov/sale-hunter/internal/store"
)

const (
	AllCategories      = "All"
	maxMatchesPerAlert = 10
)

// Notifier delivers one alert's matches to its subscriber.
type Notifier interface {
	Notify(ctx context.Context, alert store.Alert, matches []listing.NormalizedListing) error
}

type AlertLister interface {
	ListAlerts(ctx context.Context) ([]store.Alert, error)
}

// LogNotifier writes alerts to the process log instead of sending mail.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, alert store.Alert, matches []listing.NormalizedListing) error {
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, fmt.Sprintf("%s (%d%%)", m.IdentityKey, m.DiscountPercent))
	}
	slog.Info("sale alert", "email", alert.Email, "category", alert.Category, "matches", len(matches), "listings", strings.Join(keys, ", "))
	return nil
}

type AlertService struct {
	alerts   AlertLister
	notifier Notifier
}

func NewAlertService(alerts AlertLister, notifier Notifier) *AlertService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &AlertService{alerts: alerts, notifier: notifier}
}

// MatchesAlert reports whether l satisfies the subscription. Estimates never
// match: they carry no observed discount.
func MatchesAlert(a store.Alert, l listing.NormalizedListing) bool {
	if !l.Provenance.Real() {
		return false
	}
	if l.DiscountPercent < a.MinDiscount {
		return false
	}
	if c := strings.TrimSpace(a.Category); c != "" && !strings.EqualFold(c, AllCategories) {
		if l.Category == nil || !strings.EqualFold(NormalizeCategory(*l.Category), NormalizeCategory(c)) {
			return false
		}
	}
	if len(a.Keywords) > 0 && !MatchesKeywords(l.Title+" "+l.IdentityKey, a.Keywords) {
		return false
	}
	return true
}

// Evaluate notifies every subscription that has matches among listings,
// which are expected in report order. It returns the number of alerts sent.
func (s *AlertService) Evaluate(ctx context.Context, listings []listing.NormalizedListing) (int, error) {
	alerts, err := s.alerts.ListAlerts(ctx)
	if err != nil {
		observability.IncError(observability.ErrorStore, "alerts")
		return 0, fmt.Errorf("list alerts: %w", err)
	}

	sent := 0
	var errs []error
	for _, a := range alerts {
		var matches []listing.NormalizedListing
		for _, l := range listings {
			if MatchesAlert(a, l) {
				matches = append(matches, l)
				if len(matches) == maxMatchesPerAlert {
					break
				}
			}
		}
		if len(matches) == 0 {
			continue
		}
		if err := s.notifier.Notify(ctx, a, matches); err != nil {
			observability.IncError(observability.ErrorUnknown, "alerts")
			errs = append(errs, fmt.Errorf("notify %s: %w", a.Email, err))
			continue
		}
		observability.IncAlertSent()
		sent++
	}
	return sent, errors.Join(errs...)
}
