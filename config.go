package convauth

import (
	"bytes"
	"errors"
	"net/http"
	"time"
)

// Config is the complete engine configuration. Instances are intended to
// be configured during initialization and then treated as immutable.
type Config struct {
	Keys          KeysConfig
	Token         TokenConfig
	Refresh       RefreshConfig
	Session       SessionConfig
	DeviceBinding DeviceBindingConfig
	Cookies       CookiesConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Security      SecurityConfig
}

// KeysConfig holds the two server secrets. AccessSecret feeds the HKDF
// derivation of the access-token sealing key; RefreshSecret signs refresh
// tokens. They must differ: a leak of one must not compromise the other.
type KeysConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
}

// TokenConfig holds access-token parameters.
type TokenConfig struct {
	AccessTTL time.Duration
}

// RefreshConfig holds refresh-token parameters.
type RefreshConfig struct {
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
}

// SessionConfig holds session store and hardening parameters.
type SessionConfig struct {
	RedisPrefix          string
	MaxSessionsPerUser   int
	EnforceSingleSession bool
	EnableReplayTracking bool
	SweepInterval        time.Duration
}

// DeviceBindingConfig controls optional device fingerprint binding.
// When Enabled, sign-ins that present a device ID produce device-bound
// sessions; RequireDeviceID rejects sign-ins without one.
type DeviceBindingConfig struct {
	Enabled         bool
	RequireDeviceID bool
}

// CookiesConfig names the three credential cookies and their attributes.
// Secure is forced on by [SecurityConfig.ProductionMode].
type CookiesConfig struct {
	AccessName  string
	RefreshName string
	CurrentName string
	Path        string
	Domain      string
	SameSite    http.SameSite
}

// RateLimitConfig holds fixed-window throttle parameters.
type RateLimitConfig struct {
	EnableSignInThrottle    bool
	EnableRefreshThrottle   bool
	EnableIPThrottle        bool
	MaxSignInAttempts       int
	SignInCooldownDuration  time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds cross-cutting hardening switches.
type SecurityConfig struct {
	ProductionMode       bool
	RequireSecureCookies bool
}

// DefaultConfig returns a development-friendly configuration. Secrets are
// intentionally absent; callers must set Keys before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL: 15 * time.Minute,
		},
		Refresh: RefreshConfig{
			TTL:    7 * 24 * time.Hour,
			Issuer: "convauth",
			Leeway: 30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:          "cs",
			MaxSessionsPerUser:   0,
			EnforceSingleSession: false,
			EnableReplayTracking: true,
			SweepInterval:        time.Hour,
		},
		DeviceBinding: DeviceBindingConfig{
			Enabled:         true,
			RequireDeviceID: false,
		},
		Cookies: CookiesConfig{
			AccessName:  "access",
			RefreshName: "refresh",
			CurrentName: "current",
			Path:        "/",
			SameSite:    http.SameSiteStrictMode,
		},
		RateLimit: RateLimitConfig{
			EnableSignInThrottle:    true,
			EnableRefreshThrottle:   true,
			EnableIPThrottle:        false,
			MaxSignInAttempts:       10,
			SignInCooldownDuration:  15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode:       false,
			RequireSecureCookies: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Keys.AccessSecret = cloneBytes(cfg.Keys.AccessSecret)
	out.Keys.RefreshSecret = cloneBytes(cfg.Keys.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for internal consistency. Build calls
// it; callers constructing configs by hand may call it early to surface
// mistakes before wiring Redis.
func (c *Config) Validate() error {
	if len(c.Keys.AccessSecret) < 32 {
		return errors.New("Keys AccessSecret must be at least 32 bytes")
	}
	if len(c.Keys.RefreshSecret) < 32 {
		return errors.New("Keys RefreshSecret must be at least 32 bytes")
	}
	if bytes.Equal(c.Keys.AccessSecret, c.Keys.RefreshSecret) {
		return errors.New("Keys AccessSecret and RefreshSecret must differ")
	}

	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Token.AccessTTL >= c.Refresh.TTL {
		return errors.New("Token AccessTTL must be shorter than Refresh TTL")
	}
	if c.Refresh.Leeway < 0 || c.Refresh.Leeway > 2*time.Minute {
		return errors.New("Refresh Leeway must be between 0 and 2m")
	}

	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.MaxSessionsPerUser < 0 {
		return errors.New("Session MaxSessionsPerUser must be >= 0")
	}
	if c.Session.SweepInterval < 0 {
		return errors.New("Session SweepInterval must be >= 0")
	}

	if c.Cookies.AccessName == "" || c.Cookies.RefreshName == "" || c.Cookies.CurrentName == "" {
		return errors.New("Cookies names must not be empty")
	}

	if c.RateLimit.EnableSignInThrottle {
		if c.RateLimit.MaxSignInAttempts <= 0 {
			return errors.New("RateLimit MaxSignInAttempts must be > 0 when sign-in throttle is enabled")
		}
		if c.RateLimit.SignInCooldownDuration <= 0 {
			return errors.New("RateLimit SignInCooldownDuration must be > 0 when sign-in throttle is enabled")
		}
	}
	if c.RateLimit.EnableRefreshThrottle {
		if c.RateLimit.MaxRefreshAttempts <= 0 {
			return errors.New("RateLimit MaxRefreshAttempts must be > 0 when refresh throttle is enabled")
		}
		if c.RateLimit.RefreshCooldownDuration <= 0 {
			return errors.New("RateLimit RefreshCooldownDuration must be > 0 when refresh throttle is enabled")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Security.ProductionMode {
		if c.Token.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires Token AccessTTL <= 15m")
		}
		if c.Refresh.TTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires Refresh TTL <= 30d")
		}
		if !c.Security.RequireSecureCookies {
			return errors.New("ProductionMode requires RequireSecureCookies")
		}
		if c.Cookies.SameSite == http.SameSiteNoneMode {
			return errors.New("ProductionMode forbids SameSite=None cookies")
		}
		if !c.RateLimit.EnableRefreshThrottle {
			return errors.New("ProductionMode requires refresh throttling")
		}
	}

	return nil
}

// SecureCookies reports whether credential cookies must carry the Secure
// attribute under this configuration.
func (c *Config) SecureCookies() bool {
	return c.Security.ProductionMode || c.Security.RequireSecureCookies
}
