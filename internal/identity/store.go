package identity

import (
	"context"
	"errors"
	"time"
)

const (
	// PurposeResetPassword marks security tokens minted for password reset.
	PurposeResetPassword = "reset-password"

	resetTokenTTL   = time.Hour
	maxFailedLogins = 5
	lockoutDuration = 5 * time.Minute
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("identity: user not found")

	// ErrAuthFailed covers wrong password, unknown account and locked
	// account alike, so callers cannot tell which one happened.
	ErrAuthFailed = errors.New("identity: invalid credentials")

	// ErrEmailTaken is returned by Register on a duplicate email.
	ErrEmailTaken = errors.New("identity: email already registered")
)

// Store is the identity collaborator the token core depends on. One
// implementation per backing technology; the core only ever sees this
// interface.
type Store interface {
	Register(ctx context.Context, name, email, password string) (*User, error)
	VerifyCredentials(ctx context.Context, identifier, password string) (*User, error)
	FindByID(ctx context.Context, id uint) (*User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)

	GeneratePasswordResetToken(ctx context.Context, u *User) (string, error)
	VerifyPasswordResetToken(ctx context.Context, u *User, token, purpose string) (bool, error)
	ResetPassword(ctx context.Context, u *User, token, newPassword string) error
}
