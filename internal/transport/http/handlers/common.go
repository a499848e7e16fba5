package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ivankudzin/marketplace/internal/services/guard"
	httperrors "github.com/ivankudzin/marketplace/internal/transport/http/errors"
)

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeNotFound(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}

// writeGuardError maps the guard taxonomy to responses. It reports false when
// err is not a guard rejection.
func writeGuardError(w http.ResponseWriter, err error, now time.Time) bool {
	if al, ok := guard.IsAccountLocked(err); ok {
		w.Header().Set("Retry-After", strconv.FormatInt(al.RetryAfter(now), 10))
		httperrors.Write(w, http.StatusForbidden, httperrors.APIError{
			Code:    "TEMPORARILY_UNAVAILABLE",
			Message: "this action is temporarily unavailable",
		})
		return true
	}
	if vr, ok := guard.IsVerificationRequired(err); ok {
		httperrors.Write(w, http.StatusForbidden, httperrors.VerificationRequiredError{
			Code:        "VERIFICATION_REQUIRED",
			Message:     "verify your account to continue",
			Remediation: vr.Remediation,
		})
		return true
	}
	if cr, ok := guard.IsContentRejected(err); ok {
		httperrors.Write(w, http.StatusUnprocessableEntity, httperrors.ContentRejectedError{
			Code:     "CONTENT_REJECTED",
			Message:  cr.Reason,
			Category: string(cr.Category),
			FixStep:  cr.FixStep,
		})
		return true
	}
	if rl, ok := guard.IsRateLimited(err); ok {
		w.Header().Set("Retry-After", strconv.FormatInt(rl.RetryAfter(), 10))
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
			Code:          "RATE_LIMITED",
			Message:       "try again later",
			RetryAfterSec: rl.RetryAfter(),
		})
		return true
	}
	return false
}

func pathID(r *http.Request, key string) (int64, bool) {
	if r == nil {
		return 0, false
	}
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseIntOrDefault(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
