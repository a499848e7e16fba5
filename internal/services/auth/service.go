package auth

import (
	"context"
	"strings"
)

// Service authenticates API callers. Sessions and refresh are owned by the
// identity provider.
type Service struct {
	verifier *Verifier
}

func NewService(verifier *Verifier) *Service {
	return &Service{verifier: verifier}
}

func (s *Service) Authenticate(_ context.Context, accessToken string) (Caller, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Caller{}, ErrInvalidInput
	}
	if s == nil || s.verifier == nil {
		return Caller{}, ErrUnauthorized
	}
	claims, err := s.verifier.Verify(accessToken)
	if err != nil {
		return Caller{}, err
	}
	return CallerFromClaims(claims), nil
}
