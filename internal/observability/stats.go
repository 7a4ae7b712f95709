package observability

import (
	"sync"
	"sync/atomic"
)

const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeEstimated = "estimated"
)

type StatsSnapshot struct {
	PagesFetched       uint64            `json:"pages_fetched"`
	ListingsAccepted   uint64            `json:"listings_accepted"`
	ListingsRejected   uint64            `json:"listings_rejected"`
	ListingsEstimated  uint64            `json:"listings_estimated"`
	AlertsSent         uint64            `json:"alerts_sent"`
	Runs               uint64            `json:"runs"`
	ErrorsTotal        uint64            `json:"errors_total"`
	RunSecondsAvg      float64           `json:"run_seconds_avg"`
	PagesBySource      map[string]uint64 `json:"pages_by_source,omitempty"`
	RejectionsByReason map[string]uint64 `json:"rejections_by_reason,omitempty"`
	ErrorsByType       map[string]uint64 `json:"errors_by_type,omitempty"`
	ErrorsByComponent  map[string]uint64 `json:"errors_by_component,omitempty"`
}

var (
	pagesFetched      uint64
	listingsAccepted  uint64
	listingsRejected  uint64
	listingsEstimated uint64
	alertsSent        uint64
	errorsTotal       uint64

	runCount uint64
	runNanos uint64

	statsMu            sync.Mutex
	pagesBySource      = map[string]uint64{}
	rejectionsByReason = map[string]uint64{}
	errorsByType       = map[string]uint64{}
	errorsByComponent  = map[string]uint64{}
)

func IncPagesFetched(source string) {
	if source == "" {
		source = "unknown"
	}
	atomic.AddUint64(&pagesFetched, 1)
	statsMu.Lock()
	pagesBySource[source]++
	statsMu.Unlock()
	pagesFetchedTotal.WithLabelValues(source).Inc()
}

// AddListings records the outcome counts of one batch.
func AddListings(accepted, rejected, estimated int) {
	add := func(counter *uint64, n int, outcome string) {
		if n <= 0 {
			return
		}
		atomic.AddUint64(counter, uint64(n))
		listingsTotal.WithLabelValues(outcome).Add(float64(n))
	}
	add(&listingsAccepted, accepted, OutcomeAccepted)
	add(&listingsRejected, rejected, OutcomeRejected)
	add(&listingsEstimated, estimated, OutcomeEstimated)
}

func IncRejection(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	statsMu.Lock()
	rejectionsByReason[reason]++
	statsMu.Unlock()
	rejectionsTotal.WithLabelValues(reason).Inc()
}

func IncAlertSent() {
	atomic.AddUint64(&alertsSent, 1)
	alertsTotal.Inc()
}

// ObserveRunDuration records a full monitor run when stage is "run"; other
// stages only feed the histogram.
func ObserveRunDuration(stage string, seconds float64) {
	if seconds <= 0 {
		return
	}
	runDuration.WithLabelValues(stage).Observe(seconds)
	if stage != "run" {
		return
	}
	atomic.AddUint64(&runCount, 1)
	atomic.AddUint64(&runNanos, uint64(seconds*1e9))
}

func IncError(errType, component string) {
	if errType == "" {
		errType = "unknown"
	}
	if component == "" {
		component = "unknown"
	}
	atomic.AddUint64(&errorsTotal, 1)
	statsMu.Lock()
	errorsByType[errType]++
	errorsByComponent[component]++
	statsMu.Unlock()
	errorsTotalVec.WithLabelValues(errType, component).Inc()
}

func Snapshot() StatsSnapshot {
	statsMu.Lock()
	pagesCopy := copyMap(pagesBySource)
	reasonsCopy := copyMap(rejectionsByReason)
	errorsTypeCopy := copyMap(errorsByType)
	errorsComponentCopy := copyMap(errorsByComponent)
	statsMu.Unlock()

	count := atomic.LoadUint64(&runCount)
	avg := 0.0
	if count > 0 {
		avg = float64(atomic.LoadUint64(&runNanos)) / float64(count) / 1e9
	}

	return StatsSnapshot{
		PagesFetched:       atomic.LoadUint64(&pagesFetched),
		ListingsAccepted:   atomic.LoadUint64(&listingsAccepted),
		ListingsRejected:   atomic.LoadUint64(&listingsRejected),
		ListingsEstimated:  atomic.LoadUint64(&listingsEstimated),
		AlertsSent:         atomic.LoadUint64(&alertsSent),
		Runs:               count,
		ErrorsTotal:        atomic.LoadUint64(&errorsTotal),
		RunSecondsAvg:      avg,
		PagesBySource:      pagesCopy,
		RejectionsByReason: reasonsCopy,
		ErrorsByType:       errorsTypeCopy,
		ErrorsByComponent:  errorsComponentCopy,
	}
}

func copyMap(src map[string]uint64) map[string]uint64 {
	if len(src) == 0 {
		return map[string]uint64{}
	}
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
