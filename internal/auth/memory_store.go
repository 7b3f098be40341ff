package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryRefreshStore is a map-backed RefreshStore for tests and local runs.
// The mutex gives it the same per-record serialization the SQL store gets
// from its conditional UPDATE.
type MemoryRefreshStore struct {
	mu     sync.Mutex
	nextID uint
	byHash map[string]*RefreshToken
}

func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{byHash: make(map[string]*RefreshToken)}
}

func (s *MemoryRefreshStore) Create(_ context.Context, rt *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.create(rt)
	return nil
}

func (s *MemoryRefreshStore) create(rt *RefreshToken) {
	s.nextID++
	rt.ID = s.nextID
	if rt.CreatedAt.IsZero() {
		rt.CreatedAt = time.Now()
	}
	cp := *rt
	s.byHash[rt.TokenHash] = &cp
}

func (s *MemoryRefreshStore) FindByHash(_ context.Context, hash string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.byHash[hash]
	if !ok {
		return nil, nil
	}
	cp := *rt
	return &cp, nil
}

func (s *MemoryRefreshStore) Rotate(_ context.Context, current, next *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byHash[current.TokenHash]
	if !ok || stored.RevokedAt != nil {
		return ErrAlreadyRotated
	}
	now := time.Now()
	stored.RevokedAt = &now
	replaced := next.TokenHash
	stored.ReplacedByHash = &replaced
	s.create(next)
	return nil
}

func (s *MemoryRefreshStore) Revoke(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.byHash[hash]
	if !ok || rt.RevokedAt != nil {
		return nil
	}
	now := time.Now()
	rt.RevokedAt = &now
	return nil
}

func (s *MemoryRefreshStore) RevokeFamily(_ context.Context, userID uint, familyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, rt := range s.byHash {
		if rt.UserID == userID && rt.FamilyID == familyID && rt.RevokedAt == nil {
			rt.RevokedAt = &now
		}
	}
	return nil
}

func (s *MemoryRefreshStore) PruneExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, rt := range s.byHash {
		if !rt.ExpiresAt.After(now) {
			delete(s.byHash, hash)
			n++
		}
	}
	return n, nil
}

// MemoryRevocationLedger is a map-backed RevocationLedger.
type MemoryRevocationLedger struct {
	mu      sync.Mutex
	entries map[string]RevokedToken
}

func NewMemoryRevocationLedger() *MemoryRevocationLedger {
	return &MemoryRevocationLedger{entries: make(map[string]RevokedToken)}
}

func (l *MemoryRevocationLedger) Revoke(_ context.Context, tokenID string, revokedAt, expiresAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[tokenID]; ok {
		return nil
	}
	l.entries[tokenID] = RevokedToken{TokenID: tokenID, RevokedAt: revokedAt, ExpiresAt: expiresAt}
	return nil
}

func (l *MemoryRevocationLedger) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[tokenID]
	return ok && entry.ExpiresAt.After(time.Now()), nil
}

func (l *MemoryRevocationLedger) PruneExpired(_ context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int64
	for id, entry := range l.entries {
		if !entry.ExpiresAt.After(now) {
			delete(l.entries, id)
			n++
		}
	}
	return n, nil
}
