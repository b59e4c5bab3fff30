package flows

import (
	"context"
	"errors"
	"time"

	"github.com/mzfr7/convauth/refresh"
	"github.com/mzfr7/convauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureSessionMismatch
	RefreshFailureRateLimited
	RefreshFailureReuse
	RefreshFailureSessionNotFound
	RefreshFailureDeviceRejected
	RefreshFailureStore
	RefreshFailureIssueAccess
	RefreshFailureIssueRefresh
)

// RefreshRequest carries the verified inputs of one refresh attempt. UserID
// and SessionID come from the resolved session key, not from the token.
type RefreshRequest struct {
	Token     string
	UserID    string
	SessionID string
	DeviceID  string
}

// RefreshResult carries either the renewed credentials or failure metadata.
// RotationAttempted distinguishes a hash mismatch on the CAS path (lost
// race or replay of the about-to-rotate token) from one on the read path.
type RefreshResult struct {
	Failure           RefreshFailureKind
	Err               error
	UserID            string
	SessionID         string
	Record            *session.Record
	Rotated           bool
	RotationAttempted bool
	AccessToken       string
	AccessExpiresAt   time.Time
	RefreshToken      string
	RefreshExpiresAt  time.Time
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, sessionID string) error
}

type RefreshSessionStore interface {
	Lookup(ctx context.Context, userID, sessionID string, tokenHash [32]byte) (*session.Record, error)
	Rotate(
		ctx context.Context,
		userID, sessionID string,
		providedHash, nextHash [32]byte,
		nextExpiresAt time.Time,
	) (*session.Record, error)
	Delete(ctx context.Context, userID, sessionID string) error
	TrackReplayAnomaly(ctx context.Context, sessionID string, ttl time.Duration) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	VerifyRefresh        func(string) (*refresh.Claims, error)
	IssueRefresh         func(userID, sessionID, deviceID string) (string, time.Time, error)
	HashToken            func(string) [32]byte
	HashDevice           func(string) [32]byte
	IssueAccess          func(ctx context.Context, userID string) (string, time.Time, error)
	Now                  func() time.Time
	RateLimiter          RefreshRateLimiter
	Store                RefreshSessionStore
	EnableReplayTracking bool
	ReplayTTL            time.Duration
	Warn                 func(string, ...any)
}

// ShouldRotate reports whether a verified refresh token has crossed the
// rotation threshold: half of its total lifetime elapsed. Tokens with
// unreadable lifetimes rotate unconditionally.
func ShouldRotate(claims *refresh.Claims, now time.Time) bool {
	lifetime := claims.TotalLifetime()
	if lifetime <= 0 || claims.ExpiresAt == nil {
		return true
	}
	return !now.Before(claims.ExpiresAt.Add(-lifetime / 2))
}

// RunRefresh executes verification, rotation, and issuance logic without
// root package dependencies.
//
// The flow never retries a lost rotation race: a hash mismatch means the
// presented token was already consumed, and the only safe outcome is a
// forced re-authentication.
func RunRefresh(ctx context.Context, req RefreshRequest, deps RefreshDeps) RefreshResult {
	claims, err := deps.VerifyRefresh(req.Token)
	if err != nil {
		return RefreshResult{
			Failure:   RefreshFailureVerify,
			Err:       err,
			UserID:    req.UserID,
			SessionID: req.SessionID,
		}
	}

	// The token must agree with the resolved session key. Disagreement is
	// a swapped or cross-wired cookie pair, never recoverable.
	if claims.Subject != req.UserID || claims.SessionID != req.SessionID {
		return RefreshResult{
			Failure:   RefreshFailureSessionMismatch,
			Err:       errors.New("token claims do not match session key"),
			UserID:    req.UserID,
			SessionID: req.SessionID,
		}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, req.SessionID); err != nil {
			return RefreshResult{
				Failure:   RefreshFailureRateLimited,
				Err:       err,
				UserID:    req.UserID,
				SessionID: req.SessionID,
			}
		}
	}

	providedHash := deps.HashToken(req.Token)
	rotate := ShouldRotate(claims, deps.Now())

	var (
		rec              *session.Record
		nextToken        string
		nextExpiry       time.Time
		rotationComplete bool
	)
	if rotate {
		nextToken, nextExpiry, err = deps.IssueRefresh(req.UserID, req.SessionID, claims.DeviceID)
		if err != nil {
			return RefreshResult{
				Failure:   RefreshFailureIssueRefresh,
				Err:       err,
				UserID:    req.UserID,
				SessionID: req.SessionID,
			}
		}
		rec, err = deps.Store.Rotate(ctx, req.UserID, req.SessionID, providedHash, deps.HashToken(nextToken), nextExpiry)
		rotationComplete = err == nil
	} else {
		rec, err = deps.Store.Lookup(ctx, req.UserID, req.SessionID, providedHash)
		nextToken = req.Token
		nextExpiry = claims.ExpiresAt.Time
	}
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenHashMismatch):
			// Reuse of a consumed token, or a lost concurrent rotation.
			// The record is dead either way; make sure of it and record
			// the anomaly.
			_ = deps.Store.Delete(ctx, req.UserID, req.SessionID)
			if deps.EnableReplayTracking {
				if trackErr := deps.Store.TrackReplayAnomaly(ctx, req.SessionID, deps.ReplayTTL); trackErr != nil && deps.Warn != nil {
					deps.Warn("convauth: replay anomaly tracking failed")
				}
			}
			return RefreshResult{
				Failure:           RefreshFailureReuse,
				Err:               err,
				UserID:            req.UserID,
				SessionID:         req.SessionID,
				RotationAttempted: rotate,
			}
		case errors.Is(err, session.ErrNotFound):
			return RefreshResult{
				Failure:   RefreshFailureSessionNotFound,
				Err:       err,
				UserID:    req.UserID,
				SessionID: req.SessionID,
			}
		default:
			return RefreshResult{
				Failure:   RefreshFailureStore,
				Err:       err,
				UserID:    req.UserID,
				SessionID: req.SessionID,
			}
		}
	}

	if rec.DeviceBound() {
		if req.DeviceID == "" || deps.HashDevice(req.DeviceID) != rec.DeviceHash {
			// A device-bound session presented from the wrong device is a
			// stolen cookie until proven otherwise. Revoke it.
			_ = deps.Store.Delete(ctx, req.UserID, req.SessionID)
			return RefreshResult{
				Failure:   RefreshFailureDeviceRejected,
				Err:       errors.New("device binding mismatch"),
				UserID:    req.UserID,
				SessionID: req.SessionID,
				Record:    rec,
				Rotated:   rotationComplete,
			}
		}
	}

	access, accessExp, err := deps.IssueAccess(ctx, req.UserID)
	if err != nil {
		return RefreshResult{
			Failure:   RefreshFailureIssueAccess,
			Err:       err,
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Record:    rec,
			Rotated:   rotationComplete,
		}
	}

	return RefreshResult{
		Failure:          RefreshFailureNone,
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		Record:           rec,
		Rotated:          rotationComplete,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     nextToken,
		RefreshExpiresAt: nextExpiry,
	}
}
