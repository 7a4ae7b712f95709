package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pagesFetchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salehunter_pages_fetched_total",
			Help: "Retailer pages fetched, by source",
		},
		[]string{"source"},
	)

	listingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salehunter_listings_total",
			Help: "Listings processed, by outcome (accepted, rejected, estimated)",
		},
		[]string{"outcome"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salehunter_rejections_total",
			Help: "Rejected listings, by reason",
		},
		[]string{"reason"},
	)

	errorsTotalVec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salehunter_errors_total",
			Help: "Errors encountered, by type and component",
		},
		[]string{"type", "component"},
	)

	alertsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "salehunter_alerts_sent_total",
			Help: "Alert notifications handed to the notifier",
		},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salehunter_run_duration_seconds",
			Help:    "Duration of monitor runs and collector passes",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	regOnce sync.Once
)

// RegisterMetrics registers the collectors with the default registry. Safe to
// call more than once.
func RegisterMetrics() {
	regOnce.Do(func() {
		prometheus.MustRegister(pagesFetchedTotal, listingsTotal, rejectionsTotal, errorsTotalVec, alertsTotal, runDuration)
	})
}
