package enums

import "strings"

type VisibilityTier string

const (
	VisibilityTierNone     VisibilityTier = "NONE"
	VisibilityTierStandard VisibilityTier = "STANDARD"
	VisibilityTierVerified VisibilityTier = "VERIFIED"
	VisibilityTierFeatured VisibilityTier = "FEATURED"
	VisibilityTierPriority VisibilityTier = "PRIORITY"
)

// ParseVisibilityTier maps unknown values to NONE.
func ParseVisibilityTier(raw string) VisibilityTier {
	switch VisibilityTier(strings.ToUpper(strings.TrimSpace(raw))) {
	case VisibilityTierStandard:
		return VisibilityTierStandard
	case VisibilityTierVerified:
		return VisibilityTierVerified
	case VisibilityTierFeatured:
		return VisibilityTierFeatured
	case VisibilityTierPriority:
		return VisibilityTierPriority
	default:
		return VisibilityTierNone
	}
}

type SubscriptionStatus string

const (
	SubscriptionStatusNone     SubscriptionStatus = "NONE"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

func ParseSubscriptionStatus(raw string) SubscriptionStatus {
	switch SubscriptionStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case SubscriptionStatusActive:
		return SubscriptionStatusActive
	case SubscriptionStatusPastDue:
		return SubscriptionStatusPastDue
	case SubscriptionStatusCanceled:
		return SubscriptionStatusCanceled
	default:
		return SubscriptionStatusNone
	}
}

type Plan string

const (
	PlanFree     Plan = "FREE"
	PlanPro      Plan = "PRO"
	PlanBusiness Plan = "BUSINESS"
)

func ParsePlan(raw string) Plan {
	switch Plan(strings.ToUpper(strings.TrimSpace(raw))) {
	case PlanPro:
		return PlanPro
	case PlanBusiness:
		return PlanBusiness
	default:
		return PlanFree
	}
}
