package middleware

import (
	"net/http"
	"time"

	convauth "github.com/mzfr7/convauth"
)

// DeviceIDHeader is the request header carrying the client device
// fingerprint for device-bound sessions.
const DeviceIDHeader = "x-device-id"

// CookieWriter reads and writes the three credential cookies: the access
// token, the refresh token, and the "current" session key
// ("userID:sessionID"). All three are httpOnly; client JavaScript never
// sees a credential.
type CookieWriter struct {
	cfg    convauth.CookiesConfig
	secure bool
}

// NewCookieWriter creates a [CookieWriter] from cookie configuration.
// secure should come from [convauth.Config.SecureCookies].
func NewCookieWriter(cfg convauth.CookiesConfig, secure bool) *CookieWriter {
	return &CookieWriter{cfg: cfg, secure: secure}
}

// Write sets all three credential cookies from a token bundle. Cookie
// expiry tracks the refresh token: the access cookie outlives its token
// on purpose, so an expired-but-present access cookie still reaches the
// refresh path instead of looking signed-out.
//
// Access-only bundles (profile setup not finished) get just the access
// cookie, expiring with the token.
func (c *CookieWriter) Write(w http.ResponseWriter, b *convauth.TokenBundle) {
	if b.RefreshToken == "" {
		c.set(w, c.cfg.AccessName, b.AccessToken, b.AccessExpiresAt)
		return
	}
	expires := b.RefreshExpiresAt
	c.set(w, c.cfg.AccessName, b.AccessToken, expires)
	c.set(w, c.cfg.RefreshName, b.RefreshToken, expires)
	c.set(w, c.cfg.CurrentName, b.CompositeKey, expires)
}

// Clear expires all three credential cookies.
func (c *CookieWriter) Clear(w http.ResponseWriter) {
	past := time.Unix(0, 0)
	c.set(w, c.cfg.AccessName, "", past)
	c.set(w, c.cfg.RefreshName, "", past)
	c.set(w, c.cfg.CurrentName, "", past)
}

// Access returns the access token cookie value.
func (c *CookieWriter) Access(r *http.Request) (string, bool) {
	return c.read(r, c.cfg.AccessName)
}

// Refresh returns the refresh token cookie value.
func (c *CookieWriter) Refresh(r *http.Request) (string, bool) {
	return c.read(r, c.cfg.RefreshName)
}

// Current returns the session key cookie value.
func (c *CookieWriter) Current(r *http.Request) (string, bool) {
	return c.read(r, c.cfg.CurrentName)
}

func (c *CookieWriter) set(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.cfg.Path,
		Domain:   c.cfg.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.cfg.SameSite,
	})
}

func (c *CookieWriter) read(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
