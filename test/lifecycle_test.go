//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"
	"time"

	convauth "github.com/mzfr7/convauth"
)

// Full credential lifecycle: sign-in, quiet refresh, rotation past
// half-lifetime, reuse detection, forced re-authentication.
func TestCredentialLifecycle(t *testing.T) {
	ctx := context.Background()
	engine, clock := newIntegrationEngine(t, nil)

	bundle, err := engine.SignIn(ctx, integrationIdentity(), "laptop")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	// Early refresh: access re-minted, refresh token untouched.
	clock.Advance(10 * time.Minute)
	early, err := engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "laptop")
	if err != nil {
		t.Fatalf("early refresh failed: %v", err)
	}
	if early.Rotated || early.RefreshToken != bundle.RefreshToken {
		t.Fatal("refresh before half-lifetime must not rotate")
	}

	// Past half-lifetime: rotation.
	clock.Advance(25 * time.Minute)
	rotated, err := engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "laptop")
	if err != nil {
		t.Fatalf("rotating refresh failed: %v", err)
	}
	if !rotated.Rotated || rotated.RefreshToken == bundle.RefreshToken {
		t.Fatal("refresh past half-lifetime must rotate")
	}
	if rotated.CompositeKey != bundle.CompositeKey {
		t.Fatal("session key must be stable across rotation")
	}

	// The consumed token is now theft evidence.
	_, err = engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "laptop")
	if !errors.Is(err, convauth.ErrMustReauthenticate) || !errors.Is(err, convauth.ErrReuseDetected) {
		t.Fatalf("expected reuse revocation, got %v", err)
	}

	// Even the rotated token is dead: the session was revoked.
	_, err = engine.Refresh(ctx, bundle.CompositeKey, rotated.RefreshToken, "laptop")
	if !errors.Is(err, convauth.ErrSessionNotFound) {
		t.Fatalf("expected revoked session, got %v", err)
	}

	// Recovery is a fresh sign-in.
	fresh, err := engine.SignIn(ctx, integrationIdentity(), "laptop")
	if err != nil {
		t.Fatalf("re-sign-in failed: %v", err)
	}
	if fresh.SessionID == bundle.SessionID {
		t.Fatal("re-sign-in must open a new session")
	}
}

// Rotation chains across many cycles without ever invalidating the
// session key held by the client.
func TestRotationChain(t *testing.T) {
	ctx := context.Background()
	engine, clock := newIntegrationEngine(t, nil)

	bundle, err := engine.SignIn(ctx, integrationIdentity(), "")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	token := bundle.RefreshToken
	for i := 0; i < 5; i++ {
		clock.Advance(31 * time.Minute)
		renewed, err := engine.Refresh(ctx, bundle.CompositeKey, token, "")
		if err != nil {
			t.Fatalf("rotation %d failed: %v", i, err)
		}
		if !renewed.Rotated {
			t.Fatalf("rotation %d: expected rotation", i)
		}
		if renewed.RefreshToken == token {
			t.Fatalf("rotation %d: token unchanged", i)
		}
		token = renewed.RefreshToken
	}
}

// The refresh token expires absolutely when no refresh happens in time.
func TestRefreshTokenAbsoluteExpiry(t *testing.T) {
	ctx := context.Background()
	engine, clock := newIntegrationEngine(t, nil)

	bundle, err := engine.SignIn(ctx, integrationIdentity(), "")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	clock.Advance(2 * time.Hour)

	_, err = engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "")
	if !errors.Is(err, convauth.ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid after expiry, got %v", err)
	}
}

// Profile edits propagate into the access token at the next refresh
// without touching the session.
func TestRefreshPicksUpProfileChanges(t *testing.T) {
	ctx := context.Background()

	provider := memoryProvider{"u-1": integrationIdentity()}
	engine, clock := newIntegrationEngineWithProvider(t, provider)

	bundle, err := engine.SignIn(ctx, integrationIdentity(), "")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	updated := integrationIdentity()
	updated.DisplayName = "Renamed"
	provider["u-1"] = updated

	clock.Advance(5 * time.Minute)
	renewed, err := engine.Refresh(ctx, bundle.CompositeKey, bundle.RefreshToken, "")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	identity, err := engine.VerifyAccess(renewed.AccessToken)
	if err != nil {
		t.Fatalf("verify access failed: %v", err)
	}
	if identity.DisplayName != "Renamed" {
		t.Fatalf("expected refreshed profile, got %q", identity.DisplayName)
	}
}
