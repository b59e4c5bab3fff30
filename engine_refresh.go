package convauth

import (
	"context"
	"errors"
	"time"

	"github.com/mzfr7/convauth/internal"
	"github.com/mzfr7/convauth/internal/flows"
	"github.com/mzfr7/convauth/refresh"
	"github.com/mzfr7/convauth/session"
)

// Refresh validates a presented refresh token against the session addressed
// by compositeKey ("userID:sessionID") and returns renewed credentials.
// The refresh token rotates once half of its lifetime has elapsed; before
// that, only the access token is re-minted and the bundle carries the
// original refresh token back.
//
// Reuse of an already-consumed token, a lost rotation race, and a device
// binding mismatch all revoke the session and return an error matching
// [ErrMustReauthenticate]. There is no retry path.
//
//	Docs: docs/engine.md
func (e *Engine) Refresh(ctx context.Context, compositeKey, refreshToken, deviceID string) (*TokenBundle, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()
	}

	userID, sessionID, err := internal.ParseCompositeKey(compositeKey)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", deviceID, ErrInvalidCompositeKey, func() map[string]string {
			return map[string]string{"reason": "composite_key_parse"}
		})
		return nil, ErrInvalidCompositeKey
	}

	// Capture the identity minted into the access token so the bundle can
	// carry it without a second decode.
	var minted Identity
	deps := e.refreshDeps()
	deps.IssueAccess = func(ctx context.Context, uid string) (string, time.Time, error) {
		identity, err := e.identities.IdentityByID(ctx, uid)
		if err != nil {
			return "", time.Time{}, err
		}
		if identity.ID != uid {
			return "", time.Time{}, ErrIdentityInvalid
		}
		tok, exp, err := e.IssueAccess(identity)
		if err == nil {
			minted = identity
		}
		return tok, exp, err
	}

	result := flows.RunRefresh(ctx, flows.RefreshRequest{
		Token:     refreshToken,
		UserID:    userID,
		SessionID: sessionID,
		DeviceID:  deviceID,
	}, deps)

	switch result.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		if result.Rotated {
			e.metricInc(MetricRefreshRotated)
			e.emitAudit(ctx, auditEventRefreshRotated, true, userID, sessionID, deviceID, nil, nil)
		} else {
			e.emitAudit(ctx, auditEventRefreshSuccess, true, userID, sessionID, deviceID, nil, nil)
		}

		return &TokenBundle{
			AccessToken:      result.AccessToken,
			AccessExpiresAt:  result.AccessExpiresAt,
			RefreshToken:     result.RefreshToken,
			RefreshExpiresAt: result.RefreshExpiresAt,
			CompositeKey:     compositeKey,
			SessionID:        sessionID,
			Rotated:          result.Rotated,
			Identity:         minted,
		}, nil

	case flows.RefreshFailureVerify:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, sessionID, deviceID, ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"reason": "verify_failed"}
		})
		return nil, ErrRefreshInvalid

	case flows.RefreshFailureSessionMismatch:
		e.metricInc(MetricSessionMismatch)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventSessionMismatch, false, userID, sessionID, deviceID, ErrSessionMismatch, nil)
		return nil, ErrSessionMismatch

	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, userID, sessionID, deviceID, ErrRefreshRateLimited, nil)
		e.emitRateLimit(ctx, "refresh", userID, sessionID)
		return nil, ErrRefreshRateLimited

	case flows.RefreshFailureReuse:
		if result.RotationAttempted {
			e.metricInc(MetricRotationRaceLost)
		}
		e.metricInc(MetricReuseDetected)
		e.metricInc(MetricSessionRevoked)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, userID, sessionID, deviceID, ErrReuseDetected, nil)
		e.emitAudit(ctx, auditEventSessionRevoked, false, userID, sessionID, deviceID, ErrReuseDetected, nil)
		return nil, errors.Join(ErrMustReauthenticate, ErrReuseDetected)

	case flows.RefreshFailureSessionNotFound:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, sessionID, deviceID, ErrSessionNotFound, func() map[string]string {
			return map[string]string{"reason": "session_not_found"}
		})
		return nil, ErrSessionNotFound

	case flows.RefreshFailureDeviceRejected:
		e.metricInc(MetricDeviceRejected)
		e.metricInc(MetricSessionRevoked)
		e.emitAudit(ctx, auditEventDeviceBindingRejected, false, userID, sessionID, deviceID, ErrDeviceRejected, nil)
		return nil, errors.Join(ErrMustReauthenticate, ErrDeviceRejected)

	case flows.RefreshFailureIssueAccess:
		if errors.Is(result.Err, ErrUserNotFound) {
			// The account vanished underneath a live session. Revoke it.
			_ = e.sessionStore.Delete(ctx, userID, sessionID)
			e.metricInc(MetricSessionRevoked)
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventSessionRevoked, false, userID, sessionID, deviceID, ErrUserNotFound, nil)
			return nil, errors.Join(ErrMustReauthenticate, ErrUserNotFound)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, sessionID, deviceID, result.Err, func() map[string]string {
			return map[string]string{"reason": "issue_access_failed"}
		})
		return nil, result.Err

	case flows.RefreshFailureIssueRefresh:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, sessionID, deviceID, result.Err, func() map[string]string {
			return map[string]string{"reason": "issue_refresh_failed"}
		})
		return nil, result.Err

	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, sessionID, deviceID, result.Err, func() map[string]string {
			return map[string]string{"reason": "store_failure"}
		})
		if errors.Is(result.Err, session.ErrRedisUnavailable) {
			return nil, errors.Join(ErrStoreUnavailable, result.Err)
		}
		return nil, result.Err
	}
}

func (e *Engine) refreshDeps() flows.RefreshDeps {
	deps := flows.RefreshDeps{
		VerifyRefresh:        e.refreshMgr.Verify,
		IssueRefresh:         e.refreshMgr.Issue,
		HashToken:            refresh.Hash,
		HashDevice:           internal.HashBindingValue,
		IssueAccess:          e.issueAccessFor,
		Now:                  e.now,
		Store:                e.sessionStore,
		EnableReplayTracking: e.config.Session.EnableReplayTracking,
		ReplayTTL:            e.config.Refresh.TTL,
	}
	if e.rateLimiter != nil {
		deps.RateLimiter = e.rateLimiter
	}
	return deps
}
