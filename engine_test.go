package convauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mapProvider struct {
	mu   sync.RWMutex
	byID map[string]Identity
}

func (p *mapProvider) IdentityByID(_ context.Context, userID string) (Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	identity, ok := p.byID[userID]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	return identity, nil
}

func (p *mapProvider) remove(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byID, userID)
}

func engineTestIdentity() Identity {
	return Identity{
		ID:            "u-1",
		Email:         "u1@example.com",
		Username:      "u1",
		DisplayName:   "User One",
		SetupComplete: true,
	}
}

type engineHarness struct {
	engine   *Engine
	clock    *testClock
	provider *mapProvider
	redis    *miniredis.Miniredis
}

func newEngineHarness(t *testing.T, mutate func(*Config)) *engineHarness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := validTestConfig()
	cfg.Security.RequireSecureCookies = false
	cfg.RateLimit = RateLimitConfig{}
	cfg.Refresh.TTL = time.Hour
	cfg.Token.AccessTTL = 15 * time.Minute
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	clock := &testClock{now: time.Now()}
	provider := &mapProvider{byID: map[string]Identity{"u-1": engineTestIdentity()}}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(provider).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	return &engineHarness{engine: engine, clock: clock, provider: provider, redis: mr}
}

func TestSignInIssuesFullBundle(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	bundle, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if bundle.AccessToken == "" || bundle.RefreshToken == "" || bundle.SessionID == "" {
		t.Fatalf("incomplete bundle: %+v", bundle)
	}
	if bundle.Rotated {
		t.Fatal("fresh sign-in must not be marked rotated")
	}
	if bundle.CompositeKey != "u-1:"+bundle.SessionID {
		t.Fatalf("unexpected composite key %q", bundle.CompositeKey)
	}

	identity, err := h.engine.VerifyAccess(bundle.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if identity.ID != "u-1" {
		t.Fatalf("unexpected identity %+v", identity)
	}

	count, err := h.engine.SessionCount(ctx, "u-1")
	if err != nil {
		t.Fatalf("session count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 session, got %d", count)
	}
}

func TestSignInIncompleteProfileAccessOnly(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	bundle, err := h.engine.SignIn(ctx, Identity{ID: "u-9", Email: "u9@example.com"}, "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if bundle.AccessToken == "" {
		t.Fatal("expected an access token")
	}
	if bundle.RefreshToken != "" || bundle.CompositeKey != "" || bundle.SessionID != "" {
		t.Fatalf("incomplete profile must get an access-only bundle, got %+v", bundle)
	}

	identity, err := h.engine.VerifyAccess(bundle.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if identity.ID != "u-9" || identity.SetupComplete {
		t.Fatalf("unexpected identity %+v", identity)
	}

	count, err := h.engine.SessionCount(ctx, "u-9")
	if err != nil {
		t.Fatalf("session count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no session records for incomplete profile, got %d", count)
	}

	snap := h.engine.MetricsSnapshot()
	if got := snap.Counters[MetricSignInIncomplete]; got != 1 {
		t.Fatalf("expected 1 incomplete sign-in counted, got %d", got)
	}
	if got := snap.Counters[MetricSessionCreated]; got != 0 {
		t.Fatalf("expected 0 sessions counted, got %d", got)
	}
}

func TestSignInRejectsInvalidIdentity(t *testing.T) {
	h := newEngineHarness(t, nil)

	_, err := h.engine.SignIn(context.Background(), Identity{ID: "u-1"}, "")
	if !errors.Is(err, ErrIdentityInvalid) {
		t.Fatalf("expected ErrIdentityInvalid, got %v", err)
	}
}

func TestSignInSessionsAreIndependent(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	first, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("first sign in: %v", err)
	}
	second, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Fatal("each sign-in must open an independent session")
	}

	if err := h.engine.SignOut(ctx, first.CompositeKey); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	// The other device's session survives.
	if _, err := h.engine.Refresh(ctx, second.CompositeKey, second.RefreshToken, ""); err != nil {
		t.Fatalf("surviving session must refresh: %v", err)
	}
}

func TestSignInEnforcesSessionCap(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.Session.MaxSessionsPerUser = 2
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := h.engine.SignIn(ctx, engineTestIdentity(), ""); err != nil {
			t.Fatalf("sign in %d: %v", i, err)
		}
	}
	if _, err := h.engine.SignIn(ctx, engineTestIdentity(), ""); !errors.Is(err, ErrSessionLimitExceeded) {
		t.Fatalf("expected ErrSessionLimitExceeded, got %v", err)
	}
}

func TestSignInSingleSessionEvictsPrevious(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.Session.EnforceSingleSession = true
	})
	ctx := context.Background()

	first, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("first sign in: %v", err)
	}
	if _, err := h.engine.SignIn(ctx, engineTestIdentity(), ""); err != nil {
		t.Fatalf("second sign in: %v", err)
	}

	if _, err := h.engine.Refresh(ctx, first.CompositeKey, first.RefreshToken, ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("evicted session must be gone, got %v", err)
	}
}

func TestRefreshBeforeHalfLifetimeKeepsToken(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	bundle, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	h.clock.Advance(20 * time.Minute)

	renewed, err := h.engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if renewed.Rotated {
		t.Fatal("refresh before half-lifetime must not rotate")
	}
	if renewed.RefreshToken != bundle.RefreshToken {
		t.Fatal("non-rotating refresh must return the original token")
	}
	if renewed.AccessToken == bundle.AccessToken {
		t.Fatal("access token must be re-minted")
	}

	// The original token stays valid for further refreshes.
	if _, err := h.engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, ""); err != nil {
		t.Fatalf("repeat refresh before threshold: %v", err)
	}
}

func TestRefreshPastHalfLifetimeRotates(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	bundle, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	h.clock.Advance(31 * time.Minute)

	renewed, err := h.engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !renewed.Rotated {
		t.Fatal("refresh past half-lifetime must rotate")
	}
	if renewed.RefreshToken == bundle.RefreshToken {
		t.Fatal("rotation must mint a new refresh token")
	}
	if renewed.CompositeKey != bundle.CompositeKey {
		t.Fatal("session key must survive rotation")
	}
	if renewed.RefreshExpiresAt.Before(bundle.RefreshExpiresAt) {
		t.Fatal("rotation must extend the expiry horizon")
	}
}

func TestRefreshReuseRevokesSession(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	bundle, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	h.clock.Advance(31 * time.Minute)

	renewed, err := h.engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "")
	if err != nil {
		t.Fatalf("rotating refresh: %v", err)
	}

	// Presenting the consumed token is treated as theft evidence.
	_, err = h.engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "")
	if !errors.Is(err, ErrMustReauthenticate) || !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("expected reuse revocation, got %v", err)
	}

	// The session is gone for the legitimate holder too.
	_, err = h.engine.Refresh(ctx, bundle.CompositeKey, renewed.RefreshToken, "")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected revoked session, got %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricReuseDetected] != 1 {
		t.Fatalf("expected 1 reuse detection, got %d", snap.Counters[MetricReuseDetected])
	}
	if snap.Counters[MetricSessionRevoked] == 0 {
		t.Fatal("expected session revocation counter")
	}
}

func TestRefreshCrossSessionMismatch(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	a, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	b, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	// Session A's token under session B's key.
	if _, err := h.engine.Refresh(ctx, b.CompositeKey, a.RefreshToken, ""); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}

	// Neither session may be harmed by the mixup.
	if _, err := h.engine.Refresh(ctx, a.CompositeKey, a.RefreshToken, ""); err != nil {
		t.Fatalf("session a must survive: %v", err)
	}
}

func TestRefreshDeviceMismatchRevokes(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	bundle, err := h.engine.SignIn(ctx, engineTestIdentity(), "device-a")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	_, err = h.engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "device-b")
	if !errors.Is(err, ErrMustReauthenticate) || !errors.Is(err, ErrDeviceRejected) {
		t.Fatalf("expected device rejection, got %v", err)
	}

	if _, err := h.engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "device-a"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected revoked session, got %v", err)
	}
}

func TestRefreshVanishedAccountRevokes(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	bundle, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	h.provider.remove("u-1")

	_, err = h.engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "")
	if !errors.Is(err, ErrMustReauthenticate) || !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected revocation for vanished account, got %v", err)
	}

	count, err := h.engine.SessionCount(ctx, "u-1")
	if err != nil {
		t.Fatalf("session count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected revoked session, %d remain", count)
	}
}

func TestRefreshGarbageInputs(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	bundle, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if _, err := h.engine.Refresh(ctx, "no-separator", bundle.RefreshToken, ""); !errors.Is(err, ErrInvalidCompositeKey) {
		t.Fatalf("expected ErrInvalidCompositeKey, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, bundle.CompositeKey, "not-a-jwt", ""); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
}

func TestVerifyAccessExpiry(t *testing.T) {
	h := newEngineHarness(t, nil)

	bundle, err := h.engine.SignIn(context.Background(), engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	h.clock.Advance(16 * time.Minute)

	if _, err := h.engine.VerifyAccess(bundle.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after expiry, got %v", err)
	}
}

func TestSignOutIdempotent(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	bundle, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if err := h.engine.SignOut(ctx, bundle.CompositeKey); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if err := h.engine.SignOut(ctx, bundle.CompositeKey); err != nil {
		t.Fatalf("repeat sign out must succeed: %v", err)
	}

	if _, err := h.engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected revoked session, got %v", err)
	}
}

func TestSignOutAll(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	var bundles []*TokenBundle
	for i := 0; i < 3; i++ {
		b, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
		if err != nil {
			t.Fatalf("sign in %d: %v", i, err)
		}
		bundles = append(bundles, b)
	}

	if err := h.engine.SignOutAll(ctx, "u-1"); err != nil {
		t.Fatalf("sign out all: %v", err)
	}

	for i, b := range bundles {
		if _, err := h.engine.Refresh(ctx, b.CompositeKey, b.RefreshToken, ""); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("session %d must be gone, got %v", i, err)
		}
	}
}

func TestSessionsListing(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	if _, err := h.engine.SignIn(ctx, engineTestIdentity(), "device-a"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, err := h.engine.SignIn(ctx, engineTestIdentity(), ""); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	sessions, err := h.engine.Sessions(ctx, "u-1")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	bound := 0
	for _, s := range sessions {
		if s.UserID != "u-1" {
			t.Fatalf("unexpected user %q", s.UserID)
		}
		if s.DeviceBound {
			bound++
		}
	}
	if bound != 1 {
		t.Fatalf("expected exactly one device-bound session, got %d", bound)
	}
}

func TestSignInRateLimit(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{
			EnableSignInThrottle:   true,
			MaxSignInAttempts:      2,
			SignInCooldownDuration: time.Hour,
		}
		cfg.Session.MaxSessionsPerUser = 1
	})
	ctx := context.Background()

	// First sign-in succeeds and resets the counter; the cap then forces
	// failures that accumulate attempts.
	if _, err := h.engine.SignIn(ctx, engineTestIdentity(), ""); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := h.engine.SignIn(ctx, engineTestIdentity(), ""); !errors.Is(err, ErrSessionLimitExceeded) {
			t.Fatalf("attempt %d: expected cap rejection, got %v", i, err)
		}
	}
	if _, err := h.engine.SignIn(ctx, engineTestIdentity(), ""); !errors.Is(err, ErrSignInRateLimited) {
		t.Fatalf("expected ErrSignInRateLimited, got %v", err)
	}
}

func TestRequireDeviceID(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.DeviceBinding.RequireDeviceID = true
	})

	if _, err := h.engine.SignIn(context.Background(), engineTestIdentity(), ""); !errors.Is(err, ErrDeviceRejected) {
		t.Fatalf("expected ErrDeviceRejected, got %v", err)
	}
	if _, err := h.engine.SignIn(context.Background(), engineTestIdentity(), "device-a"); err != nil {
		t.Fatalf("sign in with device id: %v", err)
	}
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	if _, err := h.engine.SignIn(ctx, engineTestIdentity(), ""); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	h.clock.Advance(2 * time.Hour)

	removed, err := h.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed == 0 {
		t.Fatal("expected expired session to be swept")
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricSweepRemoved] == 0 {
		t.Fatal("expected sweep counter")
	}
}

func TestSweeperConcurrentStartAndClose(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.Session.SweepInterval = time.Hour
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.engine.StartSweeper(ctx)
		}()
		go func() {
			defer wg.Done()
			h.engine.Close()
		}()
	}
	wg.Wait()

	// Whatever interleaving won, a final close must leave no sweeper.
	h.engine.Close()
}

func TestMetricsSnapshotCounts(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	bundle, err := h.engine.SignIn(ctx, engineTestIdentity(), "")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, ""); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricSignInSuccess] != 1 {
		t.Fatalf("expected 1 sign-in, got %d", snap.Counters[MetricSignInSuccess])
	}
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("expected 1 session created, got %d", snap.Counters[MetricSessionCreated])
	}
	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("expected 1 refresh, got %d", snap.Counters[MetricRefreshSuccess])
	}
}

func TestSecurityReportReflectsConfig(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) {
		cfg.Session.EnforceSingleSession = true
	})

	report := h.engine.SecurityReport()
	if !report.SessionCapsActive {
		t.Fatal("report must reflect single-session enforcement")
	}
	if report.RotationThreshold == "" {
		t.Fatal("report must name the rotation threshold")
	}
	if !report.ReplayTrackingEnabled {
		t.Fatal("report must reflect replay tracking")
	}
}
