// Package auth verifies bearer access tokens issued by the identity
// provider. This service never issues tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Predefined token errors.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrMissingSubject     = errors.New("access token has no subject")
)

// defaultLeeway absorbs clock skew between issuer and verifier.
const defaultLeeway = 30 * time.Second

// Claims are the access token claims this service reads.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is an optional explicit user claim; Subject is used when empty.
	UserID string `json:"uid,omitempty"`

	// Locale is the user's preferred language, when the issuer provides it.
	Locale string `json:"locale,omitempty"`
}

// User returns the authenticated user ID.
func (c *Claims) User() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// VerifierConfig holds configuration for token verification.
type VerifierConfig struct {
	// SigningKey is the shared HS256 secret.
	SigningKey string

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Audience, when set, must be present in the aud claim.
	Audience string

	// Leeway tolerated on exp/nbf. Default: 30s
	Leeway time.Duration

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// Verifier validates HS256 access tokens.
type Verifier struct {
	signingKey []byte
	parser     *jwt.Parser
}

// NewVerifier creates a new token verifier.
func NewVerifier(cfg VerifierConfig) *Verifier {
	leeway := cfg.Leeway
	if leeway == 0 {
		leeway = defaultLeeway
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}

	return &Verifier{
		signingKey: []byte(cfg.SigningKey),
		parser:     jwt.NewParser(opts...),
	}
}

// Verify validates an access token and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessToken, err.Error())
	}
	if !token.Valid {
		return nil, ErrInvalidAccessToken
	}
	if claims.User() == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// ValidateAccessToken returns the user ID carried by a valid token.
func (v *Verifier) ValidateAccessToken(tokenString string) (string, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return claims.User(), nil
}
