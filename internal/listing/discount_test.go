package listing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDiscountFromBadge(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"-45% OFF", 45, true},
		{"Up to 70% off", 70, true},
		{"10% cashback, 25% off", 25, true},
		{"Save 20% or 30%", 20, true},
		{"20% 30%", 20, true},
		{"Flat ３０％", 30, true},
		{"100% off", 100, true},
		{"150% bigger", 0, false},
		{"45.5% off", 46, true},
		{"Save 12.4%", 12, true},
		{"v2.45% cashback", 2, true},
		{"150% bigger, 15% off", 15, true},
		{"New arrival", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := DiscountFromBadge(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("DiscountFromBadge(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDiscountFromPrices(t *testing.T) {
	tests := []struct {
		sale, original string
		want           int
	}{
		{"1100", "2000", 45},
		{"3500", "5000", 30},
		{"2799", "2799", 0},
		{"3000", "2000", 0},
		{"100", "0", 0},
		{"5", "200", 98}, // 97.5 rounds away from zero
		{"1", "3", 67},
		{"0.01", "1000", 100},
	}

	for _, tt := range tests {
		got := DiscountFromPrices(decimal.RequireFromString(tt.sale), decimal.RequireFromString(tt.original))
		if got != tt.want {
			t.Errorf("DiscountFromPrices(%s, %s) = %d, want %d", tt.sale, tt.original, got, tt.want)
		}
	}
}

func TestOriginalFromDiscount(t *testing.T) {
	got, ok := OriginalFromDiscount(decimal.NewFromInt(1100), 45)
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("expected 2000, got %s", got)
	}

	got, ok = OriginalFromDiscount(decimal.NewFromInt(1000), 40)
	if !ok || !got.Equal(decimal.RequireFromString("1666.67")) {
		t.Errorf("expected 1666.67, got %s (%v)", got, ok)
	}

	for _, d := range []int{0, -5, 100, 120} {
		if _, ok := OriginalFromDiscount(decimal.NewFromInt(1000), d); ok {
			t.Errorf("discount %d should not derive an original price", d)
		}
	}
}
