package token

import (
	"bytes"
	"compress/flate"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// ErrInvalidOrExpired is the single decode failure. Tampered, malformed, and
// expired tokens are deliberately indistinguishable to callers.
var ErrInvalidOrExpired = errors.New("access token invalid or expired")

const (
	// KeySize is the AES-256 key length produced by [DeriveKey].
	KeySize = 32

	nonceSize        = 12
	maxPlaintextSize = 1 << 16
	derivationInfo   = "convauth/v1/access-token"
)

// Identity is the user snapshot sealed into an access token. It is a
// two-variant shape selected by SetupComplete: incomplete snapshots carry
// only ID and Email, complete snapshots carry the full profile. It never
// holds credential hashes or session state.
type Identity struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	Gender        string `json:"gender,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	Bio           string `json:"bio,omitempty"`
	SetupComplete bool   `json:"setupComplete"`
}

// Validate enforces the two-variant shape.
func (u Identity) Validate() error {
	if u.ID == "" || u.Email == "" {
		return errors.New("identity requires id and email")
	}
	if !u.SetupComplete {
		if u.Username != "" || u.DisplayName != "" || u.Gender != "" || u.AvatarURL != "" || u.Bio != "" {
			return errors.New("incomplete identity must not carry profile fields")
		}
		return nil
	}
	if u.Username == "" || u.DisplayName == "" {
		return errors.New("complete identity requires username and display name")
	}
	return nil
}

type payload struct {
	Identity  Identity `json:"u"`
	IssuedAt  int64    `json:"iat"`
	ExpiresAt int64    `json:"exp"`
}

// DeriveKey deterministically derives the codec's AES-256 key from a
// long-lived server secret via HKDF-SHA256. Pure function, no I/O. The
// refresh-token signer uses a different server secret; compromise of one
// key never compromises the other.
func DeriveKey(serverSecret []byte) ([KeySize]byte, error) {
	var key [KeySize]byte
	if len(serverSecret) == 0 {
		return key, errors.New("empty server secret")
	}

	r := hkdf.New(sha256.New, serverSecret, nil, []byte(derivationInfo))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// Codec seals and opens self-contained access tokens. Decode is stateless
// and store-lookup-free: the hot path of every authenticated request is
// O(1) CPU-only.
//
//	Performance: Encode/Decode perform no Redis round-trips, ever.
type Codec struct {
	aead cipher.AEAD
	ttl  time.Duration
	now  func() time.Time
}

// NewCodec creates a [Codec] from a derived key and the access-token TTL.
// now is injectable for expiry tests; nil selects [time.Now].
func NewCodec(key [KeySize]byte, accessTTL time.Duration, now func() time.Time) (*Codec, error) {
	if accessTTL <= 0 {
		return nil, errors.New("invalid access TTL")
	}
	if now == nil {
		now = time.Now
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Codec{
		aead: aead,
		ttl:  accessTTL,
		now:  now,
	}, nil
}

// TTL returns the configured access-token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode serializes, compresses, and seals an identity snapshot into a
// transport-safe string. A fresh random nonce is drawn per call and
// prepended to the ciphertext. Pure transform: the caller owns cookie
// attributes and transport.
func (c *Codec) Encode(u Identity) (string, error) {
	if err := u.Validate(); err != nil {
		return "", err
	}

	issued := c.now()
	plain, err := json.Marshal(payload{
		Identity:  u,
		IssuedAt:  issued.Unix(),
		ExpiresAt: issued.Add(c.ttl).Unix(),
	})
	if err != nil {
		return "", err
	}

	var compressed bytes.Buffer
	zw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return "", err
	}
	if _, err := zw.Write(plain); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	sealed := make([]byte, nonceSize, nonceSize+compressed.Len()+c.aead.Overhead())
	if _, err := rand.Read(sealed[:nonceSize]); err != nil {
		return "", err
	}
	sealed = c.aead.Seal(sealed, sealed[:nonceSize], compressed.Bytes(), nil)

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens, decompresses, and deserializes an access token. Fails
// closed: every failure mode collapses into [ErrInvalidOrExpired].
func (c *Codec) Decode(token string) (*Identity, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(sealed) < nonceSize+c.aead.Overhead() {
		return nil, ErrInvalidOrExpired
	}

	compressed, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, ErrInvalidOrExpired
	}

	zr := flate.NewReader(bytes.NewReader(compressed))
	plain, err := io.ReadAll(io.LimitReader(zr, maxPlaintextSize))
	if closeErr := zr.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, ErrInvalidOrExpired
	}

	var p payload
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, ErrInvalidOrExpired
	}
	// Timestamps are truncated to whole seconds at Encode. A strict >
	// keeps a token from expiring early inside its final second; it may
	// outlive its nominal expiry by under a second instead.
	if p.ExpiresAt <= 0 || c.now().Unix() > p.ExpiresAt {
		return nil, ErrInvalidOrExpired
	}
	if err := p.Identity.Validate(); err != nil {
		return nil, ErrInvalidOrExpired
	}

	return &p.Identity, nil
}
