package guard

import (
	"errors"
	"time"

	"github.com/ivankudzin/marketplace/internal/services/abuse"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrDependenciesNil = errors.New("guard dependencies are not configured")
)

// RemediationVerify is where unverified identities are sent.
const RemediationVerify = "/v1/me/verification"

type RateLimitedError struct {
	RetryAfterSec int64
	Tier          string
}

func (e RateLimitedError) Error() string {
	return "rate limited"
}

func (e RateLimitedError) RetryAfter() int64 {
	if e.RetryAfterSec <= 0 {
		return 1
	}
	return e.RetryAfterSec
}

func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl RateLimitedError
	if errors.As(err, &rl) {
		return &rl, true
	}
	return nil, false
}

type ContentRejectedError struct {
	Rule     abuse.RuleID
	Category abuse.Category
	Reason   string
	FixStep  string
}

func (e ContentRejectedError) Error() string {
	return "content rejected: " + string(e.Category)
}

func IsContentRejected(err error) (*ContentRejectedError, bool) {
	var cr ContentRejectedError
	if errors.As(err, &cr) {
		return &cr, true
	}
	return nil, false
}

// AccountLockedError is surfaced to users without the lockout mechanism.
type AccountLockedError struct {
	Until time.Time
}

func (e AccountLockedError) Error() string {
	return "temporarily unavailable"
}

func (e AccountLockedError) RetryAfter(now time.Time) int64 {
	d := e.Until.Sub(now)
	if d <= 0 {
		return 1
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	return sec
}

func IsAccountLocked(err error) (*AccountLockedError, bool) {
	var al AccountLockedError
	if errors.As(err, &al) {
		return &al, true
	}
	return nil, false
}

type VerificationRequiredError struct {
	Remediation string
}

func (e VerificationRequiredError) Error() string {
	return "verification required"
}

func IsVerificationRequired(err error) (*VerificationRequiredError, bool) {
	var vr VerificationRequiredError
	if errors.As(err, &vr) {
		return &vr, true
	}
	return nil, false
}
