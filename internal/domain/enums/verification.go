package enums

type VerificationType string

const (
	VerificationTypeNone       VerificationType = "NONE"
	VerificationTypeSeller     VerificationType = "SELLER"
	VerificationTypeContractor VerificationType = "CONTRACTOR"
)

type VerificationStatus string

const (
	VerificationStatusActive       VerificationStatus = "ACTIVE"
	VerificationStatusPendingAI    VerificationStatus = "PENDING_AI"
	VerificationStatusPendingAdmin VerificationStatus = "PENDING_ADMIN"
	VerificationStatusExpired      VerificationStatus = "EXPIRED"
	VerificationStatusRevoked      VerificationStatus = "REVOKED"
	VerificationStatusNone         VerificationStatus = "NONE"
)
