package visibility

import (
	"testing"
	"time"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
)

func strPtr(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func visibleSnapshot(now time.Time) Snapshot {
	return Snapshot{
		ListingID: 100,
		OwnerID:   7,
		Verification: model.VerificationFields{
			SellerStatus:    strPtr("ACTIVE"),
			SellerExpiresAt: timePtr(now.Add(30 * 24 * time.Hour)),
		},
		Visibility: model.VisibilityRecord{
			Tier:                enums.VisibilityTierVerified,
			SubscriptionStatus:  enums.SubscriptionStatusActive,
			VisibilityExpiresAt: timePtr(now.Add(7 * 24 * time.Hour)),
		},
	}
}

func TestAllConditionsMetIsVisible(t *testing.T) {
	now := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	d := Evaluate(visibleSnapshot(now), now)
	if !d.Visible || len(d.Failed) != 0 || len(d.Corrections) != 0 {
		t.Fatalf("expected visible with no corrections, got %+v", d)
	}
}

func TestExpiredVerificationOverridesActiveSubscription(t *testing.T) {
	now := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	s := visibleSnapshot(now)
	s.Verification.SellerExpiresAt = timePtr(now.Add(-24 * time.Hour))

	d := Evaluate(s, now)
	if d.Visible || IsVisible(s, now) {
		t.Fatalf("expired verification must hide the entity")
	}
	if len(d.Failed) != 2 || d.Failed[0] != ConditionVerificationActive || d.Failed[1] != ConditionVerificationUnexpired {
		t.Fatalf("unexpected failed conditions: %v", d.Failed)
	}
	if len(d.Corrections) != 1 || d.Corrections[0].Kind != model.CorrectionVerificationExpired ||
		d.Corrections[0].IdentityID != 7 || d.Corrections[0].VerificationType != enums.VerificationTypeSeller {
		t.Fatalf("unexpected corrections: %+v", d.Corrections)
	}
	if s.Verification.SellerStatus == nil || *s.Verification.SellerStatus != "ACTIVE" {
		t.Fatalf("gate must not mutate its input")
	}
}

func TestEachConditionAloneExcludes(t *testing.T) {
	now := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)

	flips := map[Condition]func(*Snapshot){
		ConditionVerificationActive: func(s *Snapshot) {
			s.Verification.SellerStatus = strPtr("pending_admin")
		},
		ConditionTierPaid: func(s *Snapshot) {
			s.Visibility.Tier = enums.VisibilityTierNone
		},
		ConditionSubscriptionActive: func(s *Snapshot) {
			s.Visibility.SubscriptionStatus = enums.SubscriptionStatusPastDue
		},
		ConditionVisibilityUnexpired: func(s *Snapshot) {
			s.Visibility.VisibilityExpiresAt = timePtr(now)
		},
	}

	for cond, flip := range flips {
		t.Run(string(cond), func(t *testing.T) {
			s := visibleSnapshot(now)
			flip(&s)
			d := Evaluate(s, now)
			if d.Visible {
				t.Fatalf("flipping %s must exclude", cond)
			}
			found := false
			for _, f := range d.Failed {
				if f == cond {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s among failed conditions, got %v", cond, d.Failed)
			}
		})
	}
}

func TestMonotonicInEachCondition(t *testing.T) {
	now := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	base := visibleSnapshot(now)
	base.Visibility.SubscriptionStatus = enums.SubscriptionStatusCanceled

	if IsVisible(base, now) {
		t.Fatalf("base snapshot should be excluded")
	}

	// Breaking further conditions on an excluded entity never readmits it.
	worse := base
	worse.Visibility.Tier = enums.VisibilityTierNone
	worse.Visibility.VisibilityExpiresAt = timePtr(now.Add(-time.Hour))
	if IsVisible(worse, now) {
		t.Fatalf("breaking more conditions readmitted the entity")
	}
}

func TestExpiredVisibilityAndAddOnsProduceCorrections(t *testing.T) {
	now := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	s := visibleSnapshot(now)
	s.Visibility.VisibilityExpiresAt = timePtr(now.Add(-time.Minute))
	s.Visibility.AddOns = map[string]model.AddOn{
		"spotlight": {ExpiresAt: now.Add(-time.Hour)},
		"bump":      {ExpiresAt: now.Add(-time.Second)},
		"highlight": {ExpiresAt: now.Add(time.Hour)},
	}

	d := Evaluate(s, now)
	if d.Visible {
		t.Fatalf("expired visibility must exclude")
	}
	if len(d.Corrections) != 3 {
		t.Fatalf("expected 3 corrections, got %+v", d.Corrections)
	}
	if d.Corrections[0].Kind != model.CorrectionVisibilityExpired || d.Corrections[0].ListingID != 100 {
		t.Fatalf("unexpected first correction: %+v", d.Corrections[0])
	}
	if d.Corrections[1].AddOn != "bump" || d.Corrections[2].AddOn != "spotlight" {
		t.Fatalf("add-on corrections not sorted: %+v", d.Corrections[1:])
	}
	if len(s.Visibility.AddOns) != 3 {
		t.Fatalf("gate must not mutate add-ons")
	}
}
