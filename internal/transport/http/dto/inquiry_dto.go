package dto

import "time"

type CreateInquiryRequest struct {
	ListingID int64  `json:"listing_id"`
	Message   string `json:"message"`
}

type InquiryResponse struct {
	ID        string    `json:"id"`
	ListingID int64     `json:"listing_id"`
	CreatedAt time.Time `json:"created_at"`
	Remaining int64     `json:"remaining"`
}
