package convauth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/mzfr7/convauth/internal/audit"
	"github.com/mzfr7/convauth/token"
)

// Identity is the profile snapshot sealed into access tokens.
//
//	Docs: docs/token.md
type Identity = token.Identity

// IdentityProvider is the interface callers implement to integrate the
// engine with their user database. The engine calls it on every refresh to
// re-mint the access token from current profile state, so a profile edit
// propagates at the next refresh without touching live sessions.
type IdentityProvider interface {
	IdentityByID(ctx context.Context, userID string) (Identity, error)
}

// TokenBundle is the full credential set returned by [Engine.SignIn] and
// [Engine.Refresh]. CompositeKey is the "userID:sessionID" value clients
// present alongside the refresh token; it stays stable across rotations.
type TokenBundle struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	CompositeKey     string
	SessionID        string
	Rotated          bool
	Identity         Identity
}

// SessionInfo is one entry in the [Engine.Sessions] listing.
type SessionInfo struct {
	SessionID   string
	UserID      string
	DeviceBound bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport struct {
	ProductionMode        bool
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	RotationThreshold     string
	DeviceBindingEnabled  bool
	DeviceBindingRequired bool
	ReplayTrackingEnabled bool
	SessionCapsActive     bool
	RateLimitingActive    bool
	AuditEnabled          bool
	MetricsEnabled        bool
	SecureCookies         bool
}

// AuditEvent is a structured audit record emitted by the engine.
//
//	Docs: docs/audit.md
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
//
//	Docs: docs/audit.md
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
