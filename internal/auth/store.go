package auth

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyRotated is returned by RefreshStore.Rotate when the current
// record was revoked by a concurrent caller; at most one rotation of the same
// secret can win.
var ErrAlreadyRotated = errors.New("auth: refresh token already rotated")

// RefreshStore persists refresh records. Implementations must serialize the
// conditional revoke per record so two concurrent rotations of the same
// secret cannot both succeed.
type RefreshStore interface {
	Create(ctx context.Context, rt *RefreshToken) error
	FindByHash(ctx context.Context, hash string) (*RefreshToken, error)

	// Rotate atomically revokes current (linking it to next's hash) and
	// inserts next. Either both happen or neither does.
	Rotate(ctx context.Context, current, next *RefreshToken) error

	// Revoke marks the record matching hash as revoked. Revoking a missing
	// or already-revoked record is a no-op.
	Revoke(ctx context.Context, hash string) error

	// RevokeFamily revokes every active record in a rotation family.
	RevokeFamily(ctx context.Context, userID uint, familyID string) error

	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// RevocationLedger records revoked bearer-token ids until their natural
// expiry passes.
type RevocationLedger interface {
	Revoke(ctx context.Context, tokenID string, revokedAt, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}
