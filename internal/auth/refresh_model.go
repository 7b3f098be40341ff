package auth

import (
	"time"

	"gorm.io/gorm"
)

// RefreshToken is the durable record of an issued refresh secret. Only the
// hash is kept; ReplacedByHash links a rotated record to its successor for
// audit, never for validation.
type RefreshToken struct {
	ID             uint   `gorm:"primaryKey"`
	UserID         uint   `gorm:"index"`
	FamilyID       string `gorm:"index"`
	TokenHash      string `gorm:"uniqueIndex"`
	Fingerprint    string
	ExpiresAt      time.Time `gorm:"index"`
	RevokedAt      *time.Time
	ReplacedByHash *string
	CreatedAt      time.Time
}

// RevokedToken is a revocation-ledger entry for a bearer token id (jti).
// ExpiresAt mirrors the token's own expiry so entries can be pruned once the
// token would have died naturally.
type RevokedToken struct {
	ID        uint   `gorm:"primaryKey"`
	TokenID   string `gorm:"uniqueIndex;column:token_id"`
	RevokedAt time.Time
	ExpiresAt time.Time `gorm:"index"`
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&RefreshToken{}, &RevokedToken{})
}
