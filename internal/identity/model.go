package identity

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is the account record backing login. The password never leaves this
// package in any form other than the bcrypt hash.
type User struct {
	gorm.Model
	Name         string `json:"name"`
	Email        string `json:"email" gorm:"uniqueIndex"`
	PasswordHash string `json:"-"`
	RoleList     string `json:"-" gorm:"column:roles"`

	FailedLogins int        `json:"-"`
	LockedUntil  *time.Time `json:"-"`
}

// Roles splits the stored comma-separated role list.
func (u *User) Roles() []string {
	if u.RoleList == "" {
		return nil
	}
	parts := strings.Split(u.RoleList, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}

// SecurityToken is a single-use, purpose-bound token (password reset etc.),
// stored hashed like refresh secrets.
type SecurityToken struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index"`
	Purpose   string `gorm:"index"`
	TokenHash string `gorm:"uniqueIndex"`
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &SecurityToken{})
}
