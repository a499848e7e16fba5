package dto

import "time"

type PublishListingResponse struct {
	ID        int64      `json:"id"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at"`
	// SoftFlags are review hints that did not block publishing.
	SoftFlags []string `json:"soft_flags"`
	Remaining int64    `json:"remaining"`
}

type ListingItem struct {
	ID        int64     `json:"id"`
	SellerID  int64     `json:"seller_id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
	Score     float64   `json:"score"`
	// Badge is the owner's verification type.
	Badge string `json:"badge"`
}
