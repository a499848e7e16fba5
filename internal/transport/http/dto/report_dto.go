package dto

import "time"

type CreateReportRequest struct {
	TargetID  int64  `json:"target_id"`
	ListingID *int64 `json:"listing_id"`
	Reason    string `json:"reason"`
	Details   string `json:"details"`
}

type ReportResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
