package model

import (
	"time"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
)

type Identity struct {
	ID                     int64              `json:"id"`
	CreatedAt              time.Time          `json:"created_at"`
	EmailVerified          bool               `json:"email_verified"`
	Plan                   enums.Plan         `json:"plan"`
	SpamWarnings           int                `json:"spam_warnings"`
	SpamSuspendedUntil     *time.Time         `json:"spam_suspended_until"`
	RejectedReportCount    int                `json:"rejected_report_count"`
	ReportRateLimitedUntil *time.Time         `json:"report_rate_limited_until"`
	Verification           VerificationFields `json:"verification"`
}

// VerificationFields holds the raw stored verification columns. SellerStatus is
// the current column, SellerStatusLegacy the pre-migration one.
type VerificationFields struct {
	SellerStatus        *string    `json:"seller_status"`
	SellerStatusLegacy  *string    `json:"seller_status_legacy"`
	SellerExpiresAt     *time.Time `json:"seller_expires_at"`
	ContractorStatus    *string    `json:"contractor_status"`
	ContractorExpiresAt *time.Time `json:"contractor_expires_at"`
}

type TrustRecord struct {
	IdentityID         int64
	SpamWarnings       int
	SpamSuspendedUntil *time.Time
}

// TrustUpdateFunc computes the next trust record from the stored one. Stores may
// call it more than once when a concurrent writer wins, so it must be pure.
type TrustUpdateFunc func(current TrustRecord) (next TrustRecord, changed bool)
