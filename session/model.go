package session

// Record is one entry in a user's session list: a single device/browser
// session bound to the hash of its current refresh token. At most one
// Record exists per SessionID; a user may hold zero-to-many concurrent
// records (multi-device).
//
// Record instances are value snapshots; mutation happens only through the
// store's atomic rotation.
type Record struct {
	SessionID string
	UserID    string

	// TokenHash is the SHA-256 of the current refresh token. The plaintext
	// token is never persisted.
	TokenHash [32]byte

	// DeviceHash is the SHA-256 of the bound device fingerprint, or all
	// zeros when the session is not device-bound.
	DeviceHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}

// DeviceBound reports whether the record carries a device binding.
func (r *Record) DeviceBound() bool {
	return r.DeviceHash != [32]byte{}
}
