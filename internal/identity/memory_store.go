package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/optiktrack/api-auth/internal/utils"
)

// MemoryStore is a map-backed Store used by tests and local development. It
// applies the same lockout and single-use reset-token rules as the gorm store.
type MemoryStore struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*User
	tokens map[string]*SecurityToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[uint]*User),
		tokens: make(map[string]*SecurityToken),
	}
}

func (s *MemoryStore) Register(_ context.Context, name, email, password string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return nil, ErrEmailTaken
		}
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	s.nextID++
	u := &User{Name: name, Email: email, PasswordHash: hash, RoleList: "user"}
	u.ID = s.nextID
	u.CreatedAt = time.Now()
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) VerifyCredentials(_ context.Context, identifier, password string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findByEmail(identifier)
	if u == nil {
		return nil, ErrAuthFailed
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
		return nil, ErrAuthFailed
	}
	u.FailedLogins = 0
	u.LockedUntil = nil
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id uint) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) FindByIdentifier(_ context.Context, identifier string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findByEmail(identifier)
	if u == nil {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GeneratePasswordResetToken(_ context.Context, u *User) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[hashToken(token)] = &SecurityToken{
		UserID:    u.ID,
		Purpose:   PurposeResetPassword,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(resetTokenTTL),
		CreatedAt: time.Now(),
	}
	return token, nil
}

func (s *MemoryStore) VerifyPasswordResetToken(_ context.Context, u *User, token, purpose string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tokens[hashToken(token)]
	if !ok || st.UserID != u.ID || st.Purpose != purpose {
		return false, nil
	}
	if st.UsedAt != nil || time.Now().After(st.ExpiresAt) {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) ResetPassword(_ context.Context, u *User, token, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tokens[hashToken(token)]
	if !ok || st.UserID != u.ID || st.Purpose != PurposeResetPassword ||
		st.UsedAt != nil || time.Now().After(st.ExpiresAt) {
		return ErrAuthFailed
	}
	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	now := time.Now()
	st.UsedAt = &now

	stored, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	stored.PasswordHash = hash
	stored.FailedLogins = 0
	stored.LockedUntil = nil
	return nil
}

// Delete removes an account; tests use it to simulate a user disappearing
// between issuance and rotation.
func (s *MemoryStore) Delete(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func (s *MemoryStore) findByEmail(email string) *User {
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}
