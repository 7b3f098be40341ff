package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// GormRefreshStore persists refresh records in Postgres. The conditional
// UPDATE on revoked_at is what serializes concurrent rotations of the same
// secret.
type GormRefreshStore struct {
	db *gorm.DB
}

func NewGormRefreshStore(db *gorm.DB) *GormRefreshStore {
	return &GormRefreshStore{db: db}
}

func (s *GormRefreshStore) Create(ctx context.Context, rt *RefreshToken) error {
	return s.db.WithContext(ctx).Create(rt).Error
}

func (s *GormRefreshStore) FindByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	var rt RefreshToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", hash).First(&rt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rt, nil
}

func (s *GormRefreshStore) Rotate(ctx context.Context, current, next *RefreshToken) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&RefreshToken{}).
			Where("token_hash = ? AND revoked_at IS NULL", current.TokenHash).
			Updates(map[string]interface{}{
				"revoked_at":       &now,
				"replaced_by_hash": next.TokenHash,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyRotated
		}
		return tx.Create(next).Error
	})
}

func (s *GormRefreshStore) Revoke(ctx context.Context, hash string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hash).
		Update("revoked_at", &now).Error
}

func (s *GormRefreshStore) RevokeFamily(ctx context.Context, userID uint, familyID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&RefreshToken{}).
		Where("user_id = ? AND family_id = ? AND revoked_at IS NULL", userID, familyID).
		Update("revoked_at", &now).Error
}

func (s *GormRefreshStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&RefreshToken{})
	return res.RowsAffected, res.Error
}

// GormRevocationLedger keeps revoked jtis in Postgres.
type GormRevocationLedger struct {
	db *gorm.DB
}

func NewGormRevocationLedger(db *gorm.DB) *GormRevocationLedger {
	return &GormRevocationLedger{db: db}
}

func (l *GormRevocationLedger) Revoke(ctx context.Context, tokenID string, revokedAt, expiresAt time.Time) error {
	entry := RevokedToken{TokenID: tokenID, RevokedAt: revokedAt, ExpiresAt: expiresAt}
	err := l.db.WithContext(ctx).Create(&entry).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

func (l *GormRevocationLedger) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&RevokedToken{}).
		Where("token_id = ? AND expires_at > ?", tokenID, time.Now()).
		Count(&count).Error
	return count > 0, err
}

func (l *GormRevocationLedger) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&RevokedToken{})
	return res.RowsAffected, res.Error
}
