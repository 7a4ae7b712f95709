package store

import (
	"strings"
	"testing"
)

func TestListingsQuery_NoFilter(t *testing.T) {
	query, args := listingsQuery(ListingFilter{})
	if strings.Contains(query, "WHERE") {
		t.Errorf("Expected no WHERE clause, got %q", query)
	}
	if !strings.Contains(query, "LIMIT $1 OFFSET $2") {
		t.Errorf("Expected limit placeholders $1/$2, got %q", query)
	}
	if len(args) != 2 || args[0] != 50 || args[1] != 0 {
		t.Errorf("Expected default paging [50 0], got %v", args)
	}
}

func TestListingsQuery_AllFilters(t *testing.T) {
	query, args := listingsQuery(ListingFilter{
		Category:    "Mobile",
		Source:      "Daraz Real-time",
		Provenance:  "Observed",
		MinDiscount: 20,
		Limit:       10000,
		Offset:      -4,
	})

	want := "WHERE category = $1 AND source = $2 AND provenance = $3 AND discount_percent >= $4"
	if !strings.Contains(query, want) {
		t.Errorf("Expected %q in query, got %q", want, query)
	}
	if !strings.Contains(query, "LIMIT $5 OFFSET $6") {
		t.Errorf("Expected limit placeholders $5/$6, got %q", query)
	}
	if len(args) != 6 {
		t.Fatalf("Expected 6 args, got %v", args)
	}
	if args[4] != 500 || args[5] != 0 {
		t.Errorf("Expected clamped paging [500 0], got %v", args[4:])
	}
}

func TestListingsQuery_AllCategoryIsNoFilter(t *testing.T) {
	query, args := listingsQuery(ListingFilter{Category: "all"})
	if strings.Contains(query, "category =") {
		t.Errorf("Expected no category filter for All, got %q", query)
	}
	if len(args) != 2 {
		t.Errorf("Expected only paging args, got %v", args)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 20},
		{-1, 20},
		{50, 50},
		{500, 200},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in, 20, 200); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
