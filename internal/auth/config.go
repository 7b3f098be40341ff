package auth

import (
	"errors"
	"time"
)

const (
	// Tempo de vida do access token
	AccessTTL = 15 * time.Minute
	// Tempo de vida do refresh token
	RefreshTTL = 7 * 24 * time.Hour

	// allowance for clock drift between the issuer and validators
	ClockSkew = 30 * time.Second

	minKeyLen = 32
)

// ErrWeakKey is returned at startup when the signing key is missing or too
// short. The process must not start in that state.
var ErrWeakKey = errors.New("auth: signing key missing or shorter than 32 bytes")

// Config carries the process-wide token settings. It is built once at boot
// and passed by reference into the service; it is never mutated afterwards.
type Config struct {
	SigningKey []byte
	Issuer     string
	Audience   string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RevokeFamilyOnReplay hardens replay handling: presenting an
	// already-rotated refresh secret revokes every active record in that
	// rotation family instead of only rejecting the stale one.
	RevokeFamilyOnReplay bool
}

// NewConfig validates the signing key up front so a weak key kills the
// process at startup, not on the first login.
func NewConfig(signingKey []byte, issuer, audience string) (*Config, error) {
	if len(signingKey) < minKeyLen {
		return nil, ErrWeakKey
	}
	return &Config{
		SigningKey: signingKey,
		Issuer:     issuer,
		Audience:   audience,
		AccessTTL:  AccessTTL,
		RefreshTTL: RefreshTTL,
	}, nil
}
