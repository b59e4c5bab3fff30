package refresh

import (
	"crypto/sha256"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSignatureOrExpired is the single verification failure surfaced
// to callers. Signature, structure, issuer, and expiry failures collapse
// into it; the caller's recovery is always a full sign-in.
var ErrInvalidSignatureOrExpired = errors.New("refresh token invalid or expired")

// Claims are the signed refresh-token claims. The token is signed, not
// encrypted: the verifier must read sub/sid before deciding trust, and the
// claims hold nothing confidential.
type Claims struct {
	SessionID string `json:"sid"`
	DeviceID  string `json:"did,omitempty"`
	jwt.RegisteredClaims
}

// TotalLifetime is the nominal lifetime the token was issued with.
// Returns 0 when iat/exp are missing (treated as not rotatable).
func (c *Claims) TotalLifetime() time.Duration {
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(c.IssuedAt.Time)
}

// Config holds refresh-token signing parameters. Secret must come from a
// different server secret than the access-token codec key.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
	Now    func() time.Time
}

// Manager issues and verifies HS256-signed refresh tokens. Verify proves
// signature and expiry only; currency requires the session-store hash match.
type Manager struct {
	config Config
}

// NewManager validates cfg and creates a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("refresh secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{config: cfg}, nil
}

// TTL returns the configured refresh-token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Issue signs a refresh token bound to one session and, when deviceID is
// non-empty, one device fingerprint. Returns the token and its expiry.
func (m *Manager) Issue(userID, sessionID, deviceID string) (string, time.Time, error) {
	now := m.config.Now()
	expiresAt := now.Add(m.config.TTL)

	claims := Claims{
		SessionID: sessionID,
		DeviceID:  deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry. It does NOT prove the token is still
// the current one for its session — that requires the store hash compare.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, ErrInvalidSignatureOrExpired
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidSignatureOrExpired
	}

	return claims, nil
}

// Hash returns the one-way hash persisted in the session record. The signed
// token itself is never stored anywhere server-side.
func Hash(tokenStr string) [32]byte {
	return sha256.Sum256([]byte(tokenStr))
}
