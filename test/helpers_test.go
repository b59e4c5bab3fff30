//go:build integration
// +build integration

package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	convauth "github.com/mzfr7/convauth"
	"github.com/mzfr7/convauth/session"
	"github.com/redis/go-redis/v9"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryProvider map[string]convauth.Identity

func (p memoryProvider) IdentityByID(_ context.Context, userID string) (convauth.Identity, error) {
	identity, ok := p[userID]
	if !ok {
		return convauth.Identity{}, convauth.ErrUserNotFound
	}
	return identity, nil
}

func integrationIdentity() convauth.Identity {
	return convauth.Identity{
		ID:            "u-1",
		Email:         "u1@example.com",
		Username:      "u1",
		DisplayName:   "User One",
		SetupComplete: true,
	}
}

func newIntegrationEngine(t *testing.T, mutate func(*convauth.Config)) (*convauth.Engine, *fixedClock) {
	t.Helper()
	return buildIntegrationEngine(t, memoryProvider{"u-1": integrationIdentity()}, mutate)
}

func newIntegrationEngineWithProvider(t *testing.T, provider memoryProvider) (*convauth.Engine, *fixedClock) {
	t.Helper()
	return buildIntegrationEngine(t, provider, nil)
}

func buildIntegrationEngine(t *testing.T, provider memoryProvider, mutate func(*convauth.Config)) (*convauth.Engine, *fixedClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := convauth.DefaultConfig()
	cfg.Keys.AccessSecret = []byte("integration-access-0123456789abc")
	cfg.Keys.RefreshSecret = []byte("integration-refresh-0123456789ab")
	cfg.Refresh.TTL = time.Hour
	cfg.RateLimit = convauth.RateLimitConfig{}
	cfg.Security.RequireSecureCookies = false
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	clock := &fixedClock{now: time.Now()}

	engine, err := convauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(provider).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	return engine, clock
}

func newIntegrationStore(t *testing.T) *session.Store {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return session.NewStore(rdb, "cs", nil)
}

func makeRecord(userID, sessionID string, tokenHash [32]byte) *session.Record {
	now := time.Now()
	return &session.Record{
		SessionID: sessionID,
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
}

func hashByte(b byte) [32]byte {
	var out [32]byte
	for i := 0; i < len(out); i++ {
		out[i] = b
	}
	return out
}
