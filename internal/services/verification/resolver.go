// Package verification resolves the single effective verification level of an
// identity from its stored seller and contractor records.
package verification

import (
	"strings"
	"time"

	"github.com/ivankudzin/marketplace/internal/domain/enums"
	"github.com/ivankudzin/marketplace/internal/domain/model"
)

type Result struct {
	Type        enums.VerificationType   `json:"type"`
	Status      enums.VerificationStatus `json:"status"`
	ExpiresAt   *time.Time               `json:"expires_at,omitempty"`
	CanSell     bool                     `json:"can_sell"`
	CanContract bool                     `json:"can_contract"`
	// StoredStatus is the canonical stored value before the expiry override.
	StoredStatus enums.VerificationStatus `json:"-"`
}

// Expired reports whether the stored record still claims ACTIVE although its
// expiry has passed, i.e. the record should be rewritten.
func (r Result) Expired() bool {
	return r.StoredStatus == enums.VerificationStatusActive && r.Status == enums.VerificationStatusExpired
}

// aliases maps stored status strings, compared lower-case, to canonical statuses.
// Anything absent from the table resolves to NONE.
var aliases = map[string]enums.VerificationStatus{
	"active":        enums.VerificationStatusActive,
	"verified":      enums.VerificationStatusActive,
	"approved":      enums.VerificationStatusActive,
	"pending":       enums.VerificationStatusPendingAI,
	"pending_ai":    enums.VerificationStatusPendingAI,
	"ai_review":     enums.VerificationStatusPendingAI,
	"pending_admin": enums.VerificationStatusPendingAdmin,
	"admin_review":  enums.VerificationStatusPendingAdmin,
	"manual_review": enums.VerificationStatusPendingAdmin,
	"expired":       enums.VerificationStatusExpired,
	"revoked":       enums.VerificationStatusRevoked,
	"rejected":      enums.VerificationStatusRevoked,
	"suspended":     enums.VerificationStatusRevoked,
	"none":          enums.VerificationStatusNone,
	"unverified":    enums.VerificationStatusNone,
}

func Canonical(raw string) enums.VerificationStatus {
	if status, ok := aliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return enums.VerificationStatusNone
}

// Resolve is pure and idempotent.
//
//	seller: current status field, legacy field only when the current one is absent
//	type:   CONTRACTOR > SELLER by the first record stored ACTIVE; else NONE
//	status: the resolved type's record; for NONE the contractor record when present, else seller
//	expiry: a past expiry forces EXPIRED whatever is stored
func Resolve(fields model.VerificationFields, now time.Time) Result {
	contractor := newRecord(fields.ContractorStatus, fields.ContractorExpiresAt)
	sellerRaw := fields.SellerStatus
	if _, ok := present(sellerRaw); !ok {
		sellerRaw = fields.SellerStatusLegacy
	}
	seller := newRecord(sellerRaw, fields.SellerExpiresAt)

	var (
		typ = enums.VerificationTypeNone
		rec record
	)
	switch {
	case contractor.stored == enums.VerificationStatusActive:
		typ, rec = enums.VerificationTypeContractor, contractor
	case seller.stored == enums.VerificationStatusActive:
		typ, rec = enums.VerificationTypeSeller, seller
	case contractor.present:
		rec = contractor
	default:
		rec = seller
	}

	result := Result{
		Type:         typ,
		Status:       rec.effective(now),
		StoredStatus: rec.stored,
	}
	if rec.expiresAt != nil {
		expires := rec.expiresAt.UTC()
		result.ExpiresAt = &expires
	}
	result.CanSell = result.Status == enums.VerificationStatusActive
	result.CanContract = result.CanSell && result.Type == enums.VerificationTypeContractor
	return result
}

type record struct {
	present   bool
	stored    enums.VerificationStatus
	expiresAt *time.Time
}

func newRecord(raw *string, expiresAt *time.Time) record {
	value, ok := present(raw)
	if !ok {
		return record{stored: enums.VerificationStatusNone, expiresAt: expiresAt}
	}
	return record{present: true, stored: Canonical(value), expiresAt: expiresAt}
}

func (r record) expiredAt(now time.Time) bool {
	return r.expiresAt != nil && !now.Before(*r.expiresAt)
}

func (r record) effective(now time.Time) enums.VerificationStatus {
	if r.stored != enums.VerificationStatusNone && r.expiredAt(now) {
		return enums.VerificationStatusExpired
	}
	return r.stored
}

// present treats nil and blank strings alike as an absent field.
func present(raw *string) (string, bool) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return "", false
	}
	return *raw, true
}
