package auth

import (
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// VerifierOptions pins the token fields the identity provider must set.
// Empty Issuer or Audience skips that check.
type VerifierOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Verifier checks HS256 access tokens minted by the identity provider.
// It never issues tokens.
type Verifier struct {
	secret []byte
	opts   VerifierOptions
	now    func() time.Time
}

type accessTokenClaims struct {
	SessionID string `json:"sid,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func NewVerifier(secret string, opts VerifierOptions) *Verifier {
	if opts.Leeway < 0 {
		opts.Leeway = 0
	}
	return &Verifier{
		secret: []byte(secret),
		opts:   opts,
		now:    time.Now,
	}
}

func (v *Verifier) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.opts.Leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.opts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.opts.Issuer))
	}
	if v.opts.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.opts.Audience))
	}
	return opts
}

// Verify returns the claims of raw or ErrUnauthorized. The subject must be
// a positive numeric identity id.
func (v *Verifier) Verify(raw string) (AccessClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(v.secret) == 0 {
		return AccessClaims{}, ErrUnauthorized
	}

	claims := &accessTokenClaims{}
	token, err := jwt.NewParser(v.parserOptions()...).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return AccessClaims{}, ErrUnauthorized
	}

	identityID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || identityID <= 0 {
		return AccessClaims{}, ErrUnauthorized
	}

	return AccessClaims{
		IdentityID: identityID,
		SessionID:  claims.SessionID,
		Role:       strings.TrimSpace(claims.Role),
		ExpiresAt:  claims.ExpiresAt.Time.UTC(),
	}, nil
}
