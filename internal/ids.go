package internal

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const maxUserIDLen = 128

var (
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidKey       = errors.New("invalid composite session key")
)

// NewSessionID returns a fresh random session identifier. Session IDs are
// never reused; rotation keeps the ID and replaces only the token hash.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidateSessionID rejects anything that is not a canonical UUID string.
func ValidateSessionID(sessionID string) error {
	parsed, err := uuid.Parse(sessionID)
	if err != nil || parsed.String() != sessionID {
		return ErrInvalidSessionID
	}
	return nil
}

// ValidateUserID enforces the identifier charset before the value is used
// in a store key. User IDs are host-defined but must never contain the
// composite-key separator or key-pattern characters.
func ValidateUserID(userID string) error {
	if userID == "" || len(userID) > maxUserIDLen {
		return ErrInvalidUserID
	}
	for i := 0; i < len(userID); i++ {
		c := userID[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.' || c == '@':
		default:
			return ErrInvalidUserID
		}
	}
	return nil
}

// FormatCompositeKey builds the client-held "userID:sessionID" pair that
// resolves one session record without scanning the user's session list.
func FormatCompositeKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// ParseCompositeKey splits and validates both halves of a composite session
// key. Both halves are checked as well-formed identifiers before either is
// allowed anywhere near a store query.
func ParseCompositeKey(key string) (userID, sessionID string, err error) {
	userID, sessionID, ok := strings.Cut(key, ":")
	if !ok {
		return "", "", ErrInvalidKey
	}
	if err := ValidateUserID(userID); err != nil {
		return "", "", ErrInvalidKey
	}
	if err := ValidateSessionID(sessionID); err != nil {
		return "", "", ErrInvalidKey
	}
	return userID, sessionID, nil
}
