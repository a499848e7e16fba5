package model

import "github.com/ivankudzin/marketplace/internal/domain/enums"

type CorrectionKind string

const (
	CorrectionVerificationExpired CorrectionKind = "verification_expired"
	CorrectionVisibilityExpired   CorrectionKind = "visibility_expired"
	CorrectionAddOnExpired        CorrectionKind = "addon_expired"
)

// Correction is a write discovered during a read-only check, e.g. a verification
// whose expiry passed while its stored status still says ACTIVE.
type Correction struct {
	Kind             CorrectionKind
	IdentityID       int64
	ListingID        int64
	VerificationType enums.VerificationType
	AddOn            string
}
