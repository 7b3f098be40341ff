package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithUser(t *testing.T) (*MemoryStore, *User) {
	t.Helper()
	s := NewMemoryStore()
	u, err := s.Register(context.Background(), "Ana", "ana@example.com", "correct-horse")
	require.NoError(t, err)
	return s, u
}

func TestRegister_HashesPassword(t *testing.T) {
	t.Parallel()
	_, u := newStoreWithUser(t)

	assert.NotEqual(t, "correct-horse", u.PasswordHash)
	assert.Equal(t, []string{"user"}, u.Roles())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()
	s, _ := newStoreWithUser(t)

	_, err := s.Register(context.Background(), "Other", "ana@example.com", "whatever")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestVerifyCredentials_GenericFailure(t *testing.T) {
	t.Parallel()
	s, _ := newStoreWithUser(t)
	ctx := context.Background()

	u, err := s.VerifyCredentials(ctx, "ana@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)

	// wrong password and unknown account are the same error
	_, err = s.VerifyCredentials(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailed)
	_, err = s.VerifyCredentials(ctx, "ghost@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestVerifyCredentials_LockoutAfterFailures(t *testing.T) {
	t.Parallel()
	s, _ := newStoreWithUser(t)
	ctx := context.Background()

	for i := 0; i < maxFailedLogins; i++ {
		_, err := s.VerifyCredentials(ctx, "ana@example.com", "wrong")
		require.ErrorIs(t, err, ErrAuthFailed)
	}

	// correct password is rejected while the account is locked, with the
	// same generic error
	_, err := s.VerifyCredentials(ctx, "ana@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestPasswordResetToken_SingleUse(t *testing.T) {
	t.Parallel()
	s, u := newStoreWithUser(t)
	ctx := context.Background()

	token, err := s.GeneratePasswordResetToken(ctx, u)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ok, err := s.VerifyPasswordResetToken(ctx, u, token, PurposeResetPassword)
	require.NoError(t, err)
	assert.True(t, ok)

	// purpose-bound
	ok, err = s.VerifyPasswordResetToken(ctx, u, token, "confirm-email")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ResetPassword(ctx, u, token, "new-password"))

	// consumed tokens verify false and cannot reset again
	ok, err = s.VerifyPasswordResetToken(ctx, u, token, PurposeResetPassword)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, s.ResetPassword(ctx, u, token, "yet-another"), ErrAuthFailed)

	_, err = s.VerifyCredentials(ctx, "ana@example.com", "new-password")
	assert.NoError(t, err)
}

func TestResetPassword_BadToken(t *testing.T) {
	t.Parallel()
	s, u := newStoreWithUser(t)

	err := s.ResetPassword(context.Background(), u, "forged-token", "new-password")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestRoles_Parsing(t *testing.T) {
	t.Parallel()

	u := &User{RoleList: "user, admin ,"}
	assert.Equal(t, []string{"user", "admin"}, u.Roles())

	empty := &User{}
	assert.Nil(t, empty.Roles())
}
