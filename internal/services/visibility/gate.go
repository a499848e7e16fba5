// Package visibility decides whether an entity may appear in search and
// directory results. It never writes; expirations it notices are returned as
// corrections for the caller.
package visibility

import (
	"sort"
	"time"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
	"github.com/ivankudzin/marketplace/internal/services/verification"
)

type Condition string

const (
	ConditionVerificationActive    Condition = "verification_active"
	ConditionTierPaid              Condition = "tier_paid"
	ConditionSubscriptionActive    Condition = "subscription_active"
	ConditionVisibilityUnexpired   Condition = "visibility_unexpired"
	ConditionVerificationUnexpired Condition = "verification_unexpired"
)

// Conditions lists every condition in evaluation order.
var Conditions = []Condition{
	ConditionVerificationActive,
	ConditionTierPaid,
	ConditionSubscriptionActive,
	ConditionVisibilityUnexpired,
	ConditionVerificationUnexpired,
}

type Snapshot struct {
	ListingID    int64
	OwnerID      int64
	Verification model.VerificationFields
	Visibility   model.VisibilityRecord
}

type Decision struct {
	Visible      bool
	Failed       []Condition
	Verification verification.Result
	Corrections  []model.Correction
}

func IsVisible(s Snapshot, now time.Time) bool {
	return Evaluate(s, now).Visible
}

// Evaluate checks all five conditions independently; any failed one excludes.
// The result depends on now and must not outlive the query that produced it.
func Evaluate(s Snapshot, now time.Time) Decision {
	result := verification.Resolve(s.Verification, now)
	vis := s.Visibility

	checks := map[Condition]bool{
		ConditionVerificationActive:    result.Status == enums.VerificationStatusActive,
		ConditionTierPaid:              vis.Tier != "" && vis.Tier != enums.VisibilityTierNone,
		ConditionSubscriptionActive:    vis.SubscriptionStatus == enums.SubscriptionStatusActive,
		ConditionVisibilityUnexpired:   unsetOrFuture(vis.VisibilityExpiresAt, now),
		ConditionVerificationUnexpired: unsetOrFuture(result.ExpiresAt, now),
	}

	decision := Decision{Verification: result}
	for _, c := range Conditions {
		if !checks[c] {
			decision.Failed = append(decision.Failed, c)
		}
	}
	decision.Visible = len(decision.Failed) == 0
	decision.Corrections = corrections(s, result, now)
	return decision
}

func corrections(s Snapshot, result verification.Result, now time.Time) []model.Correction {
	var out []model.Correction
	if result.Expired() {
		out = append(out, model.Correction{
			Kind:             model.CorrectionVerificationExpired,
			IdentityID:       s.OwnerID,
			VerificationType: result.Type,
		})
	}

	vis := s.Visibility
	if vis.Tier != enums.VisibilityTierNone && vis.Tier != "" && !unsetOrFuture(vis.VisibilityExpiresAt, now) {
		out = append(out, model.Correction{
			Kind:      model.CorrectionVisibilityExpired,
			ListingID: s.ListingID,
		})
	}

	names := make([]string, 0, len(vis.AddOns))
	for name, addOn := range vis.AddOns {
		if !addOn.ActiveAt(now) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, model.Correction{
			Kind:      model.CorrectionAddOnExpired,
			ListingID: s.ListingID,
			AddOn:     name,
		})
	}
	return out
}

func unsetOrFuture(at *time.Time, now time.Time) bool {
	return at == nil || now.Before(*at)
}
