package listing

import (
	"reflect"
	"testing"
)

func keys(ls []NormalizedListing) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.IdentityKey
	}
	return out
}

func TestAggregateDedupeAndOrder(t *testing.T) {
	in := []NormalizedListing{
		{IdentityKey: "est-high", DiscountPercent: 70, Provenance: Estimated},
		{IdentityKey: "real-low", DiscountPercent: 15, Provenance: Inferred},
		{IdentityKey: "real-high", DiscountPercent: 60, Provenance: Observed},
		{IdentityKey: "real-low", DiscountPercent: 40, Provenance: Inferred},
		{IdentityKey: "both", DiscountPercent: 50, Provenance: Estimated},
		{IdentityKey: "both", DiscountPercent: 20, Provenance: Inferred},
	}

	got := Aggregate(in)
	want := []string{"real-high", "both", "real-low", "est-high"}
	if !reflect.DeepEqual(keys(got), want) {
		t.Fatalf("order = %v, want %v", keys(got), want)
	}

	// First seen wins within the same class.
	if got[2].DiscountPercent != 15 {
		t.Errorf("expected first real-low record, got discount %d", got[2].DiscountPercent)
	}
	// A real record supersedes an estimate that arrived earlier.
	if got[1].Provenance != Inferred || got[1].DiscountPercent != 20 {
		t.Errorf("estimate was not superseded: %+v", got[1])
	}
}

func TestAggregateEstimateNeverReplacesReal(t *testing.T) {
	got := Aggregate([]NormalizedListing{
		{IdentityKey: "k", DiscountPercent: 10, Provenance: Inferred},
		{IdentityKey: "k", DiscountPercent: 90, Provenance: Estimated},
	})
	if len(got) != 1 || got[0].Provenance != Inferred {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestAggregateStableTies(t *testing.T) {
	got := Aggregate([]NormalizedListing{
		{IdentityKey: "a", DiscountPercent: 30, Provenance: Inferred},
		{IdentityKey: "b", DiscountPercent: 30, Provenance: Observed},
		{IdentityKey: "c", DiscountPercent: 30, Provenance: Inferred},
	})
	if !reflect.DeepEqual(keys(got), []string{"a", "b", "c"}) {
		t.Errorf("ties reordered: %v", keys(got))
	}
}

func TestAggregateIdempotent(t *testing.T) {
	in := []NormalizedListing{
		{IdentityKey: "x", DiscountPercent: 5, Provenance: Estimated},
		{IdentityKey: "y", DiscountPercent: 35, Provenance: Inferred},
		{IdentityKey: "x", DiscountPercent: 25, Provenance: Observed},
		{IdentityKey: "z", DiscountPercent: 35, Provenance: Inferred},
	}
	once := Aggregate(in)
	twice := Aggregate(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("aggregate not idempotent:\n%v\n%v", keys(once), keys(twice))
	}
}

func TestAggregateEmpty(t *testing.T) {
	if got := Aggregate(nil); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}
