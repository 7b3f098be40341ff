package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/optiktrack/api-auth/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc     *TokenService
	users   *identity.MemoryStore
	refresh *MemoryRefreshStore
	ledger  *MemoryRevocationLedger
	user    *identity.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testConfig(t)
	users := identity.NewMemoryStore()
	refresh := NewMemoryRefreshStore()
	ledger := NewMemoryRevocationLedger()

	u, err := users.Register(context.Background(), "Test", "u@example.com", "secret123")
	require.NoError(t, err)

	return &testEnv{
		svc:     NewTokenService(cfg, refresh, ledger, users),
		users:   users,
		refresh: refresh,
		ledger:  ledger,
		user:    u,
	}
}

func TestLogin_IssuesPair(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, "u@example.com", "secret123", "agent")
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	// only the hash is at rest, and it is reproducible from the secret
	rt, err := env.refresh.FindByHash(ctx, HashSecret(pair.RefreshToken))
	require.NoError(t, err)
	require.NotNil(t, rt)
	assert.NotEqual(t, pair.RefreshToken, rt.TokenHash)
	assert.Equal(t, env.user.ID, rt.UserID)
	assert.Nil(t, rt.RevokedAt)

	claims, err := env.svc.ValidateBearer(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, claims)
	assert.Equal(t, "u@example.com", claims.Email)
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Login(ctx, "u@example.com", "wrong", "agent")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// unknown account reads exactly the same
	_, err = env.svc.Login(ctx, "nobody@example.com", "secret123", "agent")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRotate_EndToEnd(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	p1, err := env.svc.Login(ctx, "u@example.com", "secret123", "agent")
	require.NoError(t, err)

	p2, err := env.svc.Rotate(ctx, p1.RefreshToken, "agent")
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.NotEqual(t, p1.RefreshToken, p2.RefreshToken)

	// replaying the already-rotated secret is rejected
	replay, err := env.svc.Rotate(ctx, p1.RefreshToken, "agent")
	require.NoError(t, err)
	assert.Nil(t, replay)

	// the chain stays usable
	p3, err := env.svc.Rotate(ctx, p2.RefreshToken, "agent")
	require.NoError(t, err)
	require.NotNil(t, p3)

	// rotated record carries its successor's hash for audit
	old, err := env.refresh.FindByHash(ctx, HashSecret(p1.RefreshToken))
	require.NoError(t, err)
	require.NotNil(t, old)
	require.NotNil(t, old.RevokedAt)
	require.NotNil(t, old.ReplacedByHash)
	assert.Equal(t, HashSecret(p2.RefreshToken), *old.ReplacedByHash)
}

func TestRotate_ConcurrentSingleRedemption(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	p1, err := env.svc.Login(ctx, "u@example.com", "secret123", "agent")
	require.NoError(t, err)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*TokenPair, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.svc.Rotate(ctx, p1.RefreshToken, "agent")
		}(i)
	}
	wg.Wait()

	wins := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if results[i] != nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent rotation may succeed")
}

func TestRotate_UnknownSecret(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	pair, err := env.svc.Rotate(context.Background(), "never-issued", "agent")
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestRotate_ExpiredRecord(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	secret, err := newRefreshSecret()
	require.NoError(t, err)
	require.NoError(t, env.refresh.Create(ctx, &RefreshToken{
		UserID:    env.user.ID,
		FamilyID:  "fam",
		TokenHash: HashSecret(secret),
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	// expired is rejected even though revokedAt is still null
	pair, err := env.svc.Rotate(ctx, secret, "agent")
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestRotate_UserDeleted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	p1, err := env.svc.Login(ctx, "u@example.com", "secret123", "agent")
	require.NoError(t, err)

	env.users.Delete(env.user.ID)

	pair, err := env.svc.Rotate(ctx, p1.RefreshToken, "agent")
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestRotate_ReplayRevokesFamilyWhenHardened(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.svc.cfg.RevokeFamilyOnReplay = true
	ctx := context.Background()

	p1, err := env.svc.Login(ctx, "u@example.com", "secret123", "agent")
	require.NoError(t, err)
	p2, err := env.svc.Rotate(ctx, p1.RefreshToken, "agent")
	require.NoError(t, err)
	require.NotNil(t, p2)

	// replay of p1 marks the whole family stolen
	replay, err := env.svc.Rotate(ctx, p1.RefreshToken, "agent")
	require.NoError(t, err)
	assert.Nil(t, replay)

	// ...so p2, although never redeemed, is dead too
	p3, err := env.svc.Rotate(ctx, p2.RefreshToken, "agent")
	require.NoError(t, err)
	assert.Nil(t, p3)
}

func TestRevokeRefresh_Idempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	p1, err := env.svc.Login(ctx, "u@example.com", "secret123", "agent")
	require.NoError(t, err)

	require.NoError(t, env.svc.RevokeRefresh(ctx, p1.RefreshToken))

	rt, err := env.refresh.FindByHash(ctx, HashSecret(p1.RefreshToken))
	require.NoError(t, err)
	require.NotNil(t, rt.RevokedAt)
	revokedAt := *rt.RevokedAt

	// second revoke and a revoke of garbage are silent no-ops
	require.NoError(t, env.svc.RevokeRefresh(ctx, p1.RefreshToken))
	require.NoError(t, env.svc.RevokeRefresh(ctx, "never-issued"))

	rt, err = env.refresh.FindByHash(ctx, HashSecret(p1.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, revokedAt, *rt.RevokedAt)

	// a revoked secret cannot rotate
	pair, err := env.svc.Rotate(ctx, p1.RefreshToken, "agent")
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestValidateBearer_RevocationGate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	tok, _, err := env.svc.IssueAccessToken(env.user, "agent")
	require.NoError(t, err)

	claims, err := env.svc.ValidateBearer(ctx, tok)
	require.NoError(t, err)
	require.NotNil(t, claims)

	require.NoError(t, env.svc.RevokeBearer(ctx, claims))

	// signature and expiry are still fine, the ledger alone rejects it
	claims, err = env.svc.ValidateBearer(ctx, tok)
	require.NoError(t, err)
	assert.Nil(t, claims)
}

func TestValidateBearer_GarbageToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	claims, err := env.svc.ValidateBearer(context.Background(), "not.a.jwt")
	require.NoError(t, err)
	assert.Nil(t, claims)
}

type failingRefreshStore struct {
	RefreshStore
	err error
}

func (f *failingRefreshStore) FindByHash(context.Context, string) (*RefreshToken, error) {
	return nil, f.err
}

func TestRotate_StoreFailurePropagates(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	boom := errors.New("store unavailable")
	env.svc.refresh = &failingRefreshStore{RefreshStore: env.refresh, err: boom}

	_, err := env.svc.Rotate(context.Background(), "whatever", "agent")
	assert.ErrorIs(t, err, boom)
}
