package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/optiktrack/api-auth/internal/identity"
	"github.com/rs/zerolog/log"
)

// ErrInvalidCredentials is the single authentication failure surfaced by
// Login; wrong password, unknown account and locked account are
// indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// TokenService orchestrates issuance, rotation, revocation and validation.
// Invalid or replayed tokens come back as (nil, nil); only configuration and
// storage failures surface as errors.
type TokenService struct {
	cfg     *Config
	refresh RefreshStore
	ledger  RevocationLedger
	users   identity.Store
}

func NewTokenService(cfg *Config, refresh RefreshStore, ledger RevocationLedger, users identity.Store) *TokenService {
	return &TokenService{cfg: cfg, refresh: refresh, ledger: ledger, users: users}
}

// Login verifies credentials through the identity collaborator and issues a
// fresh access+refresh pair in a new rotation family.
func (s *TokenService) Login(ctx context.Context, identifier, password, fingerprint string) (*TokenPair, error) {
	user, err := s.users.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, identity.ErrAuthFailed) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return s.issuePair(ctx, user, fingerprint, uuid.NewString())
}

// IssueAccessToken mints a bearer token for the user. Stateless.
func (s *TokenService) IssueAccessToken(u *identity.User, fingerprint string) (string, time.Time, error) {
	return GenerateAccessToken(s.cfg, u.ID, u.Email, u.Roles(), fingerprint)
}

// IssueRefreshToken mints an opaque refresh secret and persists its record.
// The returned secret is the only copy that ever exists in plaintext.
func (s *TokenService) IssueRefreshToken(ctx context.Context, u *identity.User, fingerprint, familyID string) (string, time.Time, error) {
	secret, err := newRefreshSecret()
	if err != nil {
		return "", time.Time{}, err
	}
	rt := RefreshToken{
		UserID:      u.ID,
		FamilyID:    familyID,
		TokenHash:   HashSecret(secret),
		Fingerprint: fingerprint,
		ExpiresAt:   time.Now().Add(s.cfg.RefreshTTL),
	}
	if err := s.refresh.Create(ctx, &rt); err != nil {
		return "", time.Time{}, err
	}
	return secret, rt.ExpiresAt, nil
}

// Rotate exchanges a valid refresh secret for a new pair, revoking the
// presented record. A missing, revoked or expired record yields (nil, nil)
// with no further detail.
func (s *TokenService) Rotate(ctx context.Context, secret, fingerprint string) (*TokenPair, error) {
	hash := HashSecret(secret)

	current, err := s.refresh.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	now := time.Now()
	if current.RevokedAt != nil {
		// Replay of an already-rotated secret. The record stays rejected;
		// optionally the whole family is treated as stolen.
		log.Warn().
			Uint("user_id", current.UserID).
			Str("family_id", current.FamilyID).
			Msg("refresh token replay detected")
		if s.cfg.RevokeFamilyOnReplay {
			if err := s.refresh.RevokeFamily(ctx, current.UserID, current.FamilyID); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	if !current.ExpiresAt.After(now) {
		return nil, nil
	}

	user, err := s.users.FindByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	newSecret, err := newRefreshSecret()
	if err != nil {
		return nil, err
	}
	next := RefreshToken{
		UserID:      user.ID,
		FamilyID:    current.FamilyID,
		TokenHash:   HashSecret(newSecret),
		Fingerprint: fingerprint,
		ExpiresAt:   now.Add(s.cfg.RefreshTTL),
	}

	// Revoke-and-replace commits as one unit; a concurrent rotation of the
	// same secret loses here.
	if err := s.refresh.Rotate(ctx, current, &next); err != nil {
		if errors.Is(err, ErrAlreadyRotated) {
			return nil, nil
		}
		return nil, err
	}

	access, accessExp, err := s.IssueAccessToken(user, fingerprint)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     newSecret,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// RevokeRefresh revokes the record matching the presented secret. Revoking a
// missing or already-revoked secret is a silent no-op so logout always
// appears to succeed.
func (s *TokenService) RevokeRefresh(ctx context.Context, secret string) error {
	return s.refresh.Revoke(ctx, HashSecret(secret))
}

// ValidateBearer checks signature, issuer, audience and expiry, then consults
// the revocation ledger: a revoked jti fails validation even while the
// signature is still good.
func (s *TokenService) ValidateBearer(ctx context.Context, token string) (*Claims, error) {
	claims, err := ParseAndValidate(s.cfg, token)
	if err != nil {
		return nil, nil
	}
	revoked, err := s.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, nil
	}
	return claims, nil
}

// RevokeBearer records a bearer token id in the ledger, killing every copy of
// that token until its natural expiry.
func (s *TokenService) RevokeBearer(ctx context.Context, claims *Claims) error {
	return s.ledger.Revoke(ctx, claims.ID, time.Now(), claims.ExpiresAt.Time)
}

func (s *TokenService) issuePair(ctx context.Context, user *identity.User, fingerprint, familyID string) (*TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(user, fingerprint)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(ctx, user, fingerprint, familyID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
