package convauth

import "errors"

var (
	// ErrUnauthorized is returned when an access token fails decoding for
	// any reason. Decode failures are deliberately indistinguishable.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRefreshInvalid is returned when a refresh token fails signature or
	// expiry verification.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrInvalidCompositeKey is returned when a session key cookie cannot be
	// parsed into a userID:sessionID pair.
	ErrInvalidCompositeKey = errors.New("invalid session key")
	// ErrSessionMismatch is returned when a structurally valid token does
	// not belong to the session addressed by the key.
	ErrSessionMismatch = errors.New("session mismatch")
	// ErrSessionNotFound is returned when the addressed session record does
	// not exist or has expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrReuseDetected is returned when a refresh token is presented after
	// it was already consumed by a rotation. The session is revoked.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrDeviceRejected is returned when a device-bound session is presented
	// from a different device. The session is revoked.
	ErrDeviceRejected = errors.New("device binding rejected")
	// ErrMustReauthenticate marks errors after which no retry can succeed.
	// It is joined onto reuse, race, and device rejections; callers check
	// it with errors.Is and clear all credentials.
	ErrMustReauthenticate = errors.New("must reauthenticate")
	// ErrSignInRateLimited is returned when sign-in throttling trips.
	ErrSignInRateLimited = errors.New("sign in rate limited")
	// ErrRefreshRateLimited is returned when refresh throttling trips.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrSessionLimitExceeded is returned when a sign-in would exceed the
	// configured per-user session cap.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	// ErrIdentityInvalid is returned when an identity snapshot violates the
	// profile shape rules.
	ErrIdentityInvalid = errors.New("invalid identity")
	// ErrUserNotFound is returned by identity providers when no user exists
	// for the requested ID.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateIdentifier is returned by identity providers when an
	// identifier is already taken.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	// ErrStoreUnavailable is returned when Redis cannot be reached. The
	// engine fails closed: no credential is ever issued on infrastructure
	// errors.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called before
	// Build completed.
	ErrEngineNotReady = errors.New("engine not initialized")
)
