package convauth

import (
	"context"
	"errors"

	"github.com/mzfr7/convauth/internal"
)

// SignOut revokes the session addressed by compositeKey. Idempotent:
// signing out an already-gone session succeeds, so clients can always
// clear their cookies regardless of server state.
func (e *Engine) SignOut(ctx context.Context, compositeKey string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	userID, sessionID, err := internal.ParseCompositeKey(compositeKey)
	if err != nil {
		return ErrInvalidCompositeKey
	}
	return e.SignOutSession(ctx, userID, sessionID)
}

// SignOutSession revokes one session by its coordinates. Idempotent.
func (e *Engine) SignOutSession(ctx context.Context, userID, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	err := e.sessionStore.Delete(ctx, userID, sessionID)
	if err != nil {
		e.emitAudit(ctx, auditEventSignOutSession, false, userID, sessionID, "", ErrStoreUnavailable, nil)
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, auditEventSignOutSession, true, userID, sessionID, "", nil, nil)
	return nil
}

// SignOutAll revokes every session the user holds, across all devices.
// Use after password changes or on explicit "sign out everywhere".
func (e *Engine) SignOutAll(ctx context.Context, userID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	err := e.sessionStore.DeleteAllForUser(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventSignOutAll, false, userID, "", "", ErrStoreUnavailable, nil)
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricSignOutAll)
	e.emitAudit(ctx, auditEventSignOutAll, true, userID, "", "", nil, nil)
	return nil
}

// RevokeSession is a server-side revocation of one session, emitted as a
// security action rather than a user sign-out.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	err := e.sessionStore.Delete(ctx, userID, sessionID)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionRevoked, false, userID, sessionID, "", ErrStoreUnavailable, nil)
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, sessionID, "", nil, nil)
	return nil
}
