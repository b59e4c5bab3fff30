package convauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSignInSuccess         = "signin_success"
	auditEventSignInFailure         = "signin_failure"
	auditEventSignInRateLimited     = "signin_rate_limited"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshRotated        = "refresh_rotated"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshRateLimited    = "refresh_rate_limited"
	auditEventRefreshReuseDetected  = "refresh_reuse_detected"
	auditEventSessionMismatch       = "session_mismatch"
	auditEventDeviceBindingRejected = "device_binding_rejected"
	auditEventSignOutSession        = "signout_session"
	auditEventSignOutAll            = "signout_all"
	auditEventSessionRevoked        = "session_revoked"
	auditEventSweepCompleted        = "sweep_completed"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
)

// AuditErrorCode is the stable machine-readable error label carried in
// [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrUnauthorized        AuditErrorCode = "unauthorized"
	auditErrRefreshInvalid      AuditErrorCode = "refresh_invalid"
	auditErrInvalidKey          AuditErrorCode = "invalid_session_key"
	auditErrSessionMismatch     AuditErrorCode = "session_mismatch"
	auditErrSessionNotFound     AuditErrorCode = "session_not_found"
	auditErrReuseDetected       AuditErrorCode = "reuse_detected"
	auditErrDeviceRejected      AuditErrorCode = "device_rejected"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrSessionLimit        AuditErrorCode = "session_limit_exceeded"
	auditErrIdentityInvalid     AuditErrorCode = "identity_invalid"
	auditErrUserNotFound        AuditErrorCode = "user_not_found"
	auditErrDuplicateIdentifier AuditErrorCode = "duplicate_identifier"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	deviceID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		DeviceID:  deviceID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, userID, sessionID string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, userID, sessionID, "", nil, func() map[string]string {
		return map[string]string{
			"scope": scope,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrReuseDetected):
		return auditErrReuseDetected
	case errors.Is(err, ErrDeviceRejected):
		return auditErrDeviceRejected
	case errors.Is(err, ErrSessionMismatch):
		return auditErrSessionMismatch
	case errors.Is(err, ErrInvalidCompositeKey):
		return auditErrInvalidKey
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrSignInRateLimited),
		errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrSessionLimitExceeded):
		return auditErrSessionLimit
	case errors.Is(err, ErrIdentityInvalid):
		return auditErrIdentityInvalid
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrDuplicateIdentifier):
		return auditErrDuplicateIdentifier
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
