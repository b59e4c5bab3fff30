package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableSignInThrottle  bool
	EnableRefreshThrottle bool
	EnableIPThrottle      bool

	MaxSignInAttempts       int
	SignInCooldownDuration  time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// Limiter enforces per-identifier, per-IP, and per-session fixed-window
// rate limits using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func signInUserKey(identifier string) string {
	return "asi:" + identifier
}

func signInIPKey(ip string) string {
	return "asp:" + ip
}

func refreshKey(sessionID string) string {
	return "arf:" + sessionID
}

// CheckSignIn records a sign-in attempt for the identifier+IP pair and
// returns [ErrRateLimited] once the window budget is exhausted.
func (l *Limiter) CheckSignIn(ctx context.Context, identifier, ip string) error {
	if !l.config.EnableSignInThrottle {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, signInUserKey(identifier), l.config.SignInCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxSignInAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, signInIPKey(ip), l.config.SignInCooldownDuration)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxSignInAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetSignIn clears the sign-in counters for the identifier+IP pair.
// Called after a successful sign-in.
func (l *Limiter) ResetSignIn(ctx context.Context, identifier, ip string) error {
	if !l.config.EnableSignInThrottle {
		return nil
	}

	keys := []string{signInUserKey(identifier)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, signInIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckRefresh records a refresh attempt for the session and returns
// [ErrRateLimited] once the window budget is exhausted.
func (l *Limiter) CheckRefresh(ctx context.Context, sessionID string) error {
	if !l.config.EnableRefreshThrottle {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, refreshKey(sessionID), l.config.RefreshCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 && ttl > 0 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
