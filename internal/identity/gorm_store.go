package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/optiktrack/api-auth/internal/utils"
	"gorm.io/gorm"
)

// GormStore backs the identity collaborator with Postgres via gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Register(ctx context.Context, name, email, password string) (*User, error) {
	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := User{Name: name, Email: email, PasswordHash: hash, RoleList: "user"}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// VerifyCredentials answers ErrAuthFailed for unknown account, wrong password
// and locked account alike. Failed attempts count toward a temporary lockout.
func (s *GormStore) VerifyCredentials(ctx context.Context, identifier, password string) (*User, error) {
	u, err := s.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAuthFailed
		}
		return nil, err
	}

	now := time.Now()
	if u.LockedUntil != nil && now.Before(*u.LockedUntil) {
		return nil, ErrAuthFailed
	}

	if !utils.CheckPassword(u.PasswordHash, password) {
		u.FailedLogins++
		if u.FailedLogins >= maxFailedLogins {
			locked := now.Add(lockoutDuration)
			u.LockedUntil = &locked
			u.FailedLogins = 0
		}
		if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
			return nil, err
		}
		return nil, ErrAuthFailed
	}

	if u.FailedLogins != 0 || u.LockedUntil != nil {
		u.FailedLogins = 0
		u.LockedUntil = nil
		if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (s *GormStore) FindByID(ctx context.Context, id uint) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *GormStore) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("email = ?", identifier).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GeneratePasswordResetToken mints a random single-use token, stores only its
// hash and returns the plaintext for delivery by email.
func (s *GormStore) GeneratePasswordResetToken(ctx context.Context, u *User) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	st := SecurityToken{
		UserID:    u.ID,
		Purpose:   PurposeResetPassword,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(resetTokenTTL),
	}
	if err := s.db.WithContext(ctx).Create(&st).Error; err != nil {
		return "", err
	}
	return token, nil
}

func (s *GormStore) VerifyPasswordResetToken(ctx context.Context, u *User, token, purpose string) (bool, error) {
	var st SecurityToken
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND purpose = ? AND token_hash = ?", u.ID, purpose, hashToken(token)).
		First(&st).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if st.UsedAt != nil || time.Now().After(st.ExpiresAt) {
		return false, nil
	}
	return true, nil
}

// ResetPassword consumes the token and replaces the password hash in one
// transaction; the token cannot be redeemed twice.
func (s *GormStore) ResetPassword(ctx context.Context, u *User, token, newPassword string) error {
	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	now := time.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&SecurityToken{}).
			Where("user_id = ? AND purpose = ? AND token_hash = ? AND used_at IS NULL AND expires_at > ?",
				u.ID, PurposeResetPassword, hashToken(token), now).
			Update("used_at", &now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAuthFailed
		}
		return tx.Model(&User{}).Where("id = ?", u.ID).
			Updates(map[string]interface{}{
				"password_hash": hash,
				"failed_logins": 0,
				"locked_until":  nil,
			}).Error
	})
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
