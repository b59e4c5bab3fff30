package convauth

import (
	"context"
	"sync"
	"time"

	internalaudit "github.com/mzfr7/convauth/internal/audit"
	"github.com/mzfr7/convauth/internal/rate"
	"github.com/mzfr7/convauth/refresh"
	"github.com/mzfr7/convauth/session"
	"github.com/mzfr7/convauth/token"
)

// Engine is the session lifecycle engine. Build one with [Builder] and
// treat it as immutable; all methods are safe for concurrent use.
//
//	Docs: docs/engine.md
type Engine struct {
	config       Config
	codec        *token.Codec
	refreshMgr   *refresh.Manager
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	identities   IdentityProvider
	now          func() time.Time

	sweepMu   sync.Mutex
	sweepStop chan struct{}
}

// Close stops the background sweeper and flushes the audit dispatcher.
// Safe to call more than once and concurrently with [Engine.StartSweeper].
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.sweepMu.Lock()
	if e.sweepStop != nil {
		close(e.sweepStop)
		e.sweepStop = nil
	}
	e.sweepMu.Unlock()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped by the
// dispatcher since startup.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time deep copy of all metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping reports Redis reachability and round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessionStore.Ping(ctx)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// VerifyAccess decodes and validates an access token, returning the sealed
// identity snapshot. Every failure collapses into [ErrUnauthorized]; no
// Redis round trip is made.
//
//	Performance: pure CPU, zero I/O.
func (e *Engine) VerifyAccess(tokenStr string) (*Identity, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	identity, err := e.codec.Decode(tokenStr)
	if err != nil {
		e.metricInc(MetricAccessDecodeFailure)
		return nil, ErrUnauthorized
	}
	return identity, nil
}

// IssueAccess seals an identity snapshot into a new access token and
// returns it with its expiry.
func (e *Engine) IssueAccess(identity Identity) (string, time.Time, error) {
	if e == nil || e.codec == nil {
		return "", time.Time{}, ErrEngineNotReady
	}

	tok, err := e.codec.Encode(identity)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, e.now().Add(e.codec.TTL()), nil
}

func (e *Engine) issueAccessFor(ctx context.Context, userID string) (string, time.Time, error) {
	identity, err := e.identities.IdentityByID(ctx, userID)
	if err != nil {
		return "", time.Time{}, err
	}
	if identity.ID != userID {
		return "", time.Time{}, ErrIdentityInvalid
	}
	return e.IssueAccess(identity)
}
