package dto

import "time"

type AdminReportResolutionResponse struct {
	ReportID    string `json:"report_id"`
	Status      string `json:"status"`
	TargetID    int64  `json:"target_id"`
	TrustEffect string `json:"trust_effect,omitempty"`
}

type AdminGrantAddOnRequest struct {
	Name string `json:"name"`
}

type AdminGrantAddOnResponse struct {
	ListingID int64     `json:"listing_id"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AdminAntiAbuseSummaryResponse struct {
	ContentBlocked1h   int64                   `json:"content_blocked_1h"`
	RateLimited1h      int64                   `json:"rate_limited_1h"`
	LockoutApplied24h  int64                   `json:"lockout_applied_24h"`
	ReporterFlagged24h int64                   `json:"reporter_flagged_24h"`
	TopReporters       []AdminAntiAbuseTopItem `json:"top_reporters"`
}

type AdminAntiAbuseTopItem struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type AdminAntiAbuseTopResponse struct {
	Kind  string                  `json:"kind"`
	Limit int64                   `json:"limit"`
	Items []AdminAntiAbuseTopItem `json:"items"`
}
