package convauth

import (
	"errors"
	"time"

	internalaudit "github.com/mzfr7/convauth/internal/audit"
	"github.com/mzfr7/convauth/internal/rate"
	"github.com/mzfr7/convauth/refresh"
	"github.com/mzfr7/convauth/session"
	"github.com/mzfr7/convauth/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use: Build succeeds at
// most once.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	identities IdentityProvider
	auditSink  AuditSink
	now        func() time.Time

	built bool
}

// New creates a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the session store and limiters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityProvider sets the identity lookup used to re-mint access
// tokens on refresh.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identities = p
	return b
}

// WithAuditSink sets the sink receiving audit events. Ignored unless
// [AuditConfig.Enabled] is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process metrics system.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles refresh latency histogram recording.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock injects the time source used for token issuance, expiry
// checks, and rotation decisions. Intended for tests; nil keeps the wall
// clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, wires all subsystems, and returns the
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.identities == nil {
		return nil, errors.New("identity provider required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	key, err := token.DeriveKey(cfg.Keys.AccessSecret)
	if err != nil {
		return nil, err
	}
	codec, err := token.NewCodec(key, cfg.Token.AccessTTL, now)
	if err != nil {
		return nil, err
	}

	refreshMgr, err := refresh.NewManager(refresh.Config{
		Secret: cloneBytes(cfg.Keys.RefreshSecret),
		TTL:    cfg.Refresh.TTL,
		Issuer: cfg.Refresh.Issuer,
		Leeway: cfg.Refresh.Leeway,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		codec:        codec,
		refreshMgr:   refreshMgr,
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix, now),
		identities:   b.identities,
		now:          now,
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableSignInThrottle:    cfg.RateLimit.EnableSignInThrottle,
		EnableRefreshThrottle:   cfg.RateLimit.EnableRefreshThrottle,
		EnableIPThrottle:        cfg.RateLimit.EnableIPThrottle,
		MaxSignInAttempts:       cfg.RateLimit.MaxSignInAttempts,
		SignInCooldownDuration:  cfg.RateLimit.SignInCooldownDuration,
		MaxRefreshAttempts:      cfg.RateLimit.MaxRefreshAttempts,
		RefreshCooldownDuration: cfg.RateLimit.RefreshCooldownDuration,
	})
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
