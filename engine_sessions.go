package convauth

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Sessions lists the user's active sessions. Stale index entries are
// filtered out; the listing never exposes token or device hashes.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	ids, err := e.sessionStore.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	records, err := e.sessionStore.GetManyReadOnly(ctx, userID, ids)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, SessionInfo{
			SessionID:   rec.SessionID,
			UserID:      rec.UserID,
			DeviceBound: rec.DeviceBound(),
			CreatedAt:   time.Unix(rec.CreatedAt, 0).UTC(),
			ExpiresAt:   time.Unix(rec.ExpiresAt, 0).UTC(),
		})
	}
	return infos, nil
}

// SessionCount returns the number of active sessions tracked for a user.
// The count may briefly include sessions whose records expired via TTL
// but have not been swept yet.
func (e *Engine) SessionCount(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}

	count, err := e.sessionStore.ActiveSessionCount(ctx, userID)
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	return count, nil
}

// Sweep runs one garbage collection pass over the session store and
// returns the number of records and index entries removed.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}

	removed, err := e.sessionStore.SweepExpired(ctx)
	if removed > 0 {
		if e.metrics != nil {
			e.metrics.Add(MetricSweepRemoved, uint64(removed))
		}
		e.emitAudit(ctx, auditEventSweepCompleted, err == nil, "", "", "", err, func() map[string]string {
			return map[string]string{"removed": strconv.Itoa(removed)}
		})
	}
	if err != nil {
		return removed, errors.Join(ErrStoreUnavailable, err)
	}
	return removed, nil
}

// StartSweeper launches the background garbage collection loop at
// [SessionConfig.SweepInterval]. A zero interval disables it. The loop
// stops when ctx is cancelled or the engine is closed.
func (e *Engine) StartSweeper(ctx context.Context) {
	if e == nil || e.sessionStore == nil || e.config.Session.SweepInterval <= 0 {
		return
	}
	e.sweepMu.Lock()
	if e.sweepStop != nil {
		e.sweepMu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.sweepStop = stop
	e.sweepMu.Unlock()

	go func(stop <-chan struct{}) {
		ticker := time.NewTicker(e.config.Session.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				_, _ = e.Sweep(ctx)
			}
		}
	}(stop)
}
