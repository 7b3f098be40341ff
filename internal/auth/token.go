package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by the access token.
type Claims struct {
	Email       string   `json:"email"`
	Roles       []string `json:"roles,omitempty"`
	Fingerprint string   `json:"fp,omitempty"`
	jwt.RegisteredClaims
}

// newTokenID returns a fresh globally unique jti (uuid without dashes).
func newTokenID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateAccessToken mints a signed HS256 bearer token with a fresh jti.
// It is stateless: nothing is persisted here.
func GenerateAccessToken(cfg *Config, userID uint, email string, roles []string, fingerprint string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(cfg.AccessTTL)
	jti := newTokenID()

	claims := &Claims{
		Email:       email,
		Roles:       roles,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  []string{cfg.Audience},
			Subject:   fmt.Sprint(userID),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseAndValidate checks signature, issuer, audience and expiry (with a small
// clock-skew allowance). The revocation ledger is checked separately by the
// service, not here.
func ParseAndValidate(cfg *Config, tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithLeeway(ClockSkew),
	)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}

	c, ok := tok.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	if c.ID == "" {
		return nil, errors.New("missing jti")
	}
	if c.ExpiresAt == nil {
		return nil, errors.New("missing expiry")
	}
	return c, nil
}
