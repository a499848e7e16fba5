package model

import (
	"time"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
)

type ListingStatus string

const (
	ListingStatusDraft  ListingStatus = "draft"
	ListingStatusActive ListingStatus = "active"
	ListingStatusClosed ListingStatus = "closed"
)

type Listing struct {
	ID          int64            `json:"id"`
	SellerID    int64            `json:"seller_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Status      ListingStatus    `json:"status"`
	ImageKeys   []string         `json:"image_keys"`
	ImageHashes []string         `json:"image_hashes"`
	BaseScore   float64          `json:"base_score"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiresAt   *time.Time       `json:"expires_at"`
	Visibility  VisibilityRecord `json:"visibility"`
}

// VisibilityRecord carries only expiration timestamps; "active" is always
// derived by comparing against the read time.
type VisibilityRecord struct {
	Tier                enums.VisibilityTier     `json:"tier"`
	SubscriptionStatus  enums.SubscriptionStatus `json:"subscription_status"`
	VisibilityExpiresAt *time.Time               `json:"visibility_expires_at"`
	AddOns              map[string]AddOn         `json:"add_ons"`
}

type AddOn struct {
	ExpiresAt time.Time `json:"expires_at"`
}

func (a AddOn) ActiveAt(now time.Time) bool {
	return now.Before(a.ExpiresAt)
}
