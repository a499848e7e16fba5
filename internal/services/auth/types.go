package auth

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
)

// AccessClaims is the verified subset of an access token.
type AccessClaims struct {
	IdentityID int64
	SessionID  string
	Role       string
	ExpiresAt  time.Time
}

// Caller is the authenticated principal attached to a request context.
type Caller struct {
	IdentityID int64
	SessionID  string
	Role       string
}

func CallerFromClaims(claims AccessClaims) Caller {
	return Caller{
		IdentityID: claims.IdentityID,
		SessionID:  claims.SessionID,
		Role:       claims.Role,
	}
}

// HasRole reports whether the caller holds any of roles, ignoring case.
func (c Caller) HasRole(roles ...string) bool {
	role := strings.TrimSpace(c.Role)
	if role == "" {
		return false
	}
	for _, want := range roles {
		if strings.EqualFold(role, strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}
