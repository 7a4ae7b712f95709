package listing

import (
	"errors"
	"testing"
)

func TestGateThresholdBoundary(t *testing.T) {
	g := Gate{MinDiscount: 30}

	at := Candidate{Listing: NormalizedListing{IdentityKey: "a", DiscountPercent: 30}}
	if err := g.Check(at); err != nil {
		t.Errorf("discount equal to threshold should pass, got %v", err)
	}

	below := Candidate{Listing: NormalizedListing{IdentityKey: "b", DiscountPercent: 29}}
	err := g.Check(below)
	var r *Rejection
	if !errors.As(err, &r) {
		t.Fatalf("expected *Rejection, got %v", err)
	}
	if r.Reason != ReasonBelowThreshold || r.IdentityKey != "b" {
		t.Errorf("unexpected rejection %+v", r)
	}
}

func TestGateMissingTakesPrecedence(t *testing.T) {
	c := Candidate{Listing: NormalizedListing{IdentityKey: "c", DiscountPercent: 90}, Missing: true}
	var r *Rejection
	if err := (Gate{MinDiscount: 10}).Check(c); !errors.As(err, &r) || r.Reason != ReasonMissingMandatoryField {
		t.Errorf("expected MissingMandatoryField, got %v", err)
	}
}

func TestGateDoesNotModify(t *testing.T) {
	c := Candidate{Listing: NormalizedListing{IdentityKey: "d", DiscountPercent: 5}}
	before := c
	_ = Gate{MinDiscount: 50}.Check(c)
	if c.Listing.IdentityKey != before.Listing.IdentityKey || c.Listing.DiscountPercent != before.Listing.DiscountPercent {
		t.Errorf("candidate modified")
	}
}

func TestRejectionError(t *testing.T) {
	r := &Rejection{IdentityKey: "k", Reason: ReasonBelowThreshold, Detail: "discount 5% below minimum 10%"}
	want := `listing "k" rejected: BelowThreshold (discount 5% below minimum 10%)`
	if r.Error() != want {
		t.Errorf("unexpected message %q", r.Error())
	}
}
