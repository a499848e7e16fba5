package dto

import "time"

type MeVerificationResponse struct {
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at"`
	CanSell     bool       `json:"can_sell"`
	CanContract bool       `json:"can_contract"`
}

type MeTrustResponse struct {
	IdentityID   int64                  `json:"identity_id"`
	Verification MeVerificationResponse `json:"verification"`
	// Access is "ok" or "temporarily_unavailable"; lockout details stay server side.
	Access string `json:"access"`
	// Remaining is the quota left per action, -1 when unlimited.
	Remaining map[string]int64 `json:"remaining,omitempty"`
}
