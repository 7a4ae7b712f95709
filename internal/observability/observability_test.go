package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/baxromumarov/sale-hunter/internal/httpx"
)

func TestClassifyFetchError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ErrorUnknown},
		{&httpx.FetchError{Status: http.StatusTooManyRequests}, ErrorRateLimit},
		{&httpx.FetchError{Status: http.StatusForbidden}, ErrorBlocked},
		{&httpx.FetchError{Status: http.StatusBadGateway}, ErrorNetwork},
		{&httpx.FetchError{Err: httpx.ErrRobotsDisallowed}, ErrorBlocked},
		{fmt.Errorf("daraz: %w", context.DeadlineExceeded), ErrorNetwork},
		{errors.New("boom"), ErrorUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyFetchError(tt.err); got != tt.want {
			t.Errorf("ClassifyFetchError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestClassifyScrapeError(t *testing.T) {
	var v map[string]any
	jsonErr := json.Unmarshal([]byte("{nope"), &v)

	if got := ClassifyScrapeError(fmt.Errorf("catalog: %w", jsonErr)); got != ErrorParsing {
		t.Errorf("expected parsing, got %s", got)
	}
	if got := ClassifyScrapeError(errors.New("priceoye: no cards matched")); got != ErrorParsing {
		t.Errorf("expected parsing, got %s", got)
	}
	if got := ClassifyScrapeError(errors.New("connection reset")); got != ErrorNetwork {
		t.Errorf("expected network, got %s", got)
	}
}

func TestSnapshotCounts(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	before := Snapshot()
	IncPagesFetched("Daraz")
	AddListings(3, 2, 1)
	IncRejection("BelowThreshold")
	IncError(ErrorNetwork, "priceoye")
	IncAlertSent()
	ObserveRunDuration("run", 2)
	ObserveRunDuration("collect", 1)

	after := Snapshot()
	if after.PagesFetched-before.PagesFetched != 1 {
		t.Errorf("pages fetched not counted")
	}
	if after.ListingsAccepted-before.ListingsAccepted != 3 ||
		after.ListingsRejected-before.ListingsRejected != 2 ||
		after.ListingsEstimated-before.ListingsEstimated != 1 {
		t.Errorf("listing counts wrong: %+v", after)
	}
	if after.RejectionsByReason["BelowThreshold"] == 0 || after.ErrorsByComponent["priceoye"] == 0 {
		t.Errorf("labelled counts missing: %+v", after)
	}
	if after.Runs-before.Runs != 1 {
		t.Errorf("only the run stage should count as a run")
	}
	if after.PagesBySource["Daraz"] == 0 || after.AlertsSent == 0 {
		t.Errorf("unexpected snapshot %+v", after)
	}
}
