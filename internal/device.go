package internal

import "crypto/sha256"

// ZeroHash is the stored device hash of a session without device binding.
var ZeroHash [32]byte

// HashBindingValue hashes a client-presented device fingerprint. Only the
// hash is compared or persisted; the raw fingerprint never leaves the
// request scope.
func HashBindingValue(v string) [32]byte {
	return sha256.Sum256([]byte(v))
}
