package convauth

import (
	"context"
	"errors"

	"github.com/mzfr7/convauth/internal"
	"github.com/mzfr7/convauth/refresh"
	"github.com/mzfr7/convauth/session"
)

// SignIn opens a new device session for an already-authenticated identity
// and returns the full credential set. Identities that have not completed
// profile setup get an access-only bundle instead: no refresh token and no
// session record until setup finishes. Credential verification (password,
// OAuth, magic link) happens before this call; the engine only manages
// what comes after.
//
// Each sign-in creates an independent session: a user's other devices are
// never affected unless session caps are configured.
//
//	Docs: docs/engine.md
func (e *Engine) SignIn(ctx context.Context, identity Identity, deviceID string) (*TokenBundle, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)

	if err := identity.Validate(); err != nil {
		e.emitAudit(ctx, auditEventSignInFailure, false, identity.ID, "", deviceID, ErrIdentityInvalid, func() map[string]string {
			return map[string]string{"reason": "identity_shape"}
		})
		return nil, errors.Join(ErrIdentityInvalid, err)
	}
	if err := internal.ValidateUserID(identity.ID); err != nil {
		e.emitAudit(ctx, auditEventSignInFailure, false, identity.ID, "", deviceID, ErrIdentityInvalid, func() map[string]string {
			return map[string]string{"reason": "user_id_charset"}
		})
		return nil, errors.Join(ErrIdentityInvalid, err)
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckSignIn(ctx, identity.ID, ip); err != nil {
			e.metricInc(MetricSignInRateLimited)
			e.emitAudit(ctx, auditEventSignInRateLimited, false, identity.ID, "", deviceID, ErrSignInRateLimited, nil)
			e.emitRateLimit(ctx, "signin", identity.ID, "")
			return nil, ErrSignInRateLimited
		}
	}

	if !identity.SetupComplete {
		return e.signInIncomplete(ctx, identity, deviceID, ip)
	}

	if e.config.DeviceBinding.Enabled && e.config.DeviceBinding.RequireDeviceID && deviceID == "" {
		e.metricInc(MetricDeviceRejected)
		e.emitAudit(ctx, auditEventDeviceBindingRejected, false, identity.ID, "", "", ErrDeviceRejected, func() map[string]string {
			return map[string]string{"reason": "missing_device_id"}
		})
		return nil, ErrDeviceRejected
	}

	if err := e.enforceSessionCaps(ctx, identity.ID); err != nil {
		e.emitAudit(ctx, auditEventSignInFailure, false, identity.ID, "", deviceID, err, func() map[string]string {
			return map[string]string{"reason": "session_caps"}
		})
		return nil, err
	}

	sessionID := internal.NewSessionID()

	boundDevice := ""
	if e.config.DeviceBinding.Enabled {
		boundDevice = deviceID
	}
	refreshToken, refreshExp, err := e.refreshMgr.Issue(identity.ID, sessionID, boundDevice)
	if err != nil {
		e.emitAudit(ctx, auditEventSignInFailure, false, identity.ID, sessionID, deviceID, err, func() map[string]string {
			return map[string]string{"reason": "issue_refresh_failed"}
		})
		return nil, err
	}

	now := e.now()
	rec := &session.Record{
		SessionID: sessionID,
		UserID:    identity.ID,
		TokenHash: refresh.Hash(refreshToken),
		CreatedAt: now.Unix(),
		ExpiresAt: refreshExp.Unix(),
	}
	if boundDevice != "" {
		rec.DeviceHash = internal.HashBindingValue(boundDevice)
	}

	if err := e.sessionStore.Save(ctx, rec); err != nil {
		e.emitAudit(ctx, auditEventSignInFailure, false, identity.ID, sessionID, deviceID, ErrStoreUnavailable, func() map[string]string {
			return map[string]string{"reason": "session_save_failed"}
		})
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	access, accessExp, err := e.IssueAccess(identity)
	if err != nil {
		// Fail closed: a session without a deliverable credential set must
		// not linger.
		_ = e.sessionStore.Delete(ctx, identity.ID, sessionID)
		e.emitAudit(ctx, auditEventSignInFailure, false, identity.ID, sessionID, deviceID, err, func() map[string]string {
			return map[string]string{"reason": "issue_access_failed"}
		})
		return nil, err
	}

	if e.rateLimiter != nil {
		// Best effort: a failed counter reset must not undo the sign-in.
		_ = e.rateLimiter.ResetSignIn(ctx, identity.ID, ip)
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, true, identity.ID, sessionID, deviceID, nil, nil)

	return &TokenBundle{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
		CompositeKey:     internal.FormatCompositeKey(identity.ID, sessionID),
		SessionID:        sessionID,
		Rotated:          false,
		Identity:         identity,
	}, nil
}

// signInIncomplete handles identities that have not finished profile
// setup: they get an access token only. No session record exists until
// setup completes, so there is nothing to refresh, rotate, or revoke —
// and nothing for a device to bind to.
func (e *Engine) signInIncomplete(ctx context.Context, identity Identity, deviceID, ip string) (*TokenBundle, error) {
	access, accessExp, err := e.IssueAccess(identity)
	if err != nil {
		e.emitAudit(ctx, auditEventSignInFailure, false, identity.ID, "", deviceID, err, func() map[string]string {
			return map[string]string{"reason": "issue_access_failed"}
		})
		return nil, err
	}

	if e.rateLimiter != nil {
		// Best effort: a failed counter reset must not undo the sign-in.
		_ = e.rateLimiter.ResetSignIn(ctx, identity.ID, ip)
	}

	e.metricInc(MetricSignInIncomplete)
	e.emitAudit(ctx, auditEventSignInSuccess, true, identity.ID, "", deviceID, nil, func() map[string]string {
		return map[string]string{"variant": "access_only"}
	})

	return &TokenBundle{
		AccessToken:     access,
		AccessExpiresAt: accessExp,
		Identity:        identity,
	}, nil
}

func (e *Engine) enforceSessionCaps(ctx context.Context, userID string) error {
	cfg := e.config.Session
	if cfg.EnforceSingleSession {
		if err := e.sessionStore.DeleteAllForUser(ctx, userID); err != nil {
			return errors.Join(ErrStoreUnavailable, err)
		}
		return nil
	}
	if cfg.MaxSessionsPerUser <= 0 {
		return nil
	}

	count, err := e.sessionStore.ActiveSessionCount(ctx, userID)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if count >= cfg.MaxSessionsPerUser {
		// The index can hold stale IDs whose records expired via TTL.
		// Reconcile before denying.
		if removed, sweepErr := e.pruneUserIndex(ctx, userID); sweepErr == nil && removed > 0 {
			count -= removed
		}
	}
	if count >= cfg.MaxSessionsPerUser {
		e.metricInc(MetricSessionLimitExceeded)
		return ErrSessionLimitExceeded
	}
	return nil
}

func (e *Engine) pruneUserIndex(ctx context.Context, userID string) (int, error) {
	ids, err := e.sessionStore.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, sid := range ids {
		if _, err := e.sessionStore.GetReadOnly(ctx, userID, sid); errors.Is(err, session.ErrNotFound) {
			if delErr := e.sessionStore.Delete(ctx, userID, sid); delErr == nil {
				removed++
			}
		}
	}
	return removed, nil
}
