package convauth

import (
	internalmetrics "github.com/mzfr7/convauth/internal/metrics"
)

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
//
//	Docs: docs/metrics.md
type MetricID = internalmetrics.MetricID

const (
	// MetricSignInSuccess counts completed sign-ins.
	MetricSignInSuccess = internalmetrics.MetricSignInSuccess
	// MetricSignInIncomplete counts sign-ins with an incomplete profile.
	MetricSignInIncomplete = internalmetrics.MetricSignInIncomplete
	// MetricSignInRateLimited counts throttled sign-in attempts.
	MetricSignInRateLimited = internalmetrics.MetricSignInRateLimited
	// MetricSessionCreated counts session records created.
	MetricSessionCreated = internalmetrics.MetricSessionCreated
	// MetricSessionLimitExceeded counts sign-ins denied by session caps.
	MetricSessionLimitExceeded = internalmetrics.MetricSessionLimitExceeded
	// MetricRefreshSuccess counts successful refreshes.
	MetricRefreshSuccess = internalmetrics.MetricRefreshSuccess
	// MetricRefreshRotated counts refreshes that rotated the refresh token.
	MetricRefreshRotated = internalmetrics.MetricRefreshRotated
	// MetricRefreshFailure counts failed refreshes.
	MetricRefreshFailure = internalmetrics.MetricRefreshFailure
	// MetricRefreshRateLimited counts throttled refresh attempts.
	MetricRefreshRateLimited = internalmetrics.MetricRefreshRateLimited
	// MetricReuseDetected counts consumed-token replays.
	MetricReuseDetected = internalmetrics.MetricReuseDetected
	// MetricRotationRaceLost counts rotations lost to a concurrent winner.
	MetricRotationRaceLost = internalmetrics.MetricRotationRaceLost
	// MetricDeviceRejected counts device binding rejections.
	MetricDeviceRejected = internalmetrics.MetricDeviceRejected
	// MetricSessionMismatch counts token/key cross-wiring rejections.
	MetricSessionMismatch = internalmetrics.MetricSessionMismatch
	// MetricSessionRevoked counts defensive session revocations.
	MetricSessionRevoked = internalmetrics.MetricSessionRevoked
	// MetricSignOut counts single-session sign-outs.
	MetricSignOut = internalmetrics.MetricSignOut
	// MetricSignOutAll counts sign-out-everywhere operations.
	MetricSignOutAll = internalmetrics.MetricSignOutAll
	// MetricSweepRemoved counts records removed by the sweeper.
	MetricSweepRemoved = internalmetrics.MetricSweepRemoved
	// MetricAccessDecodeFailure counts access token decode failures.
	MetricAccessDecodeFailure = internalmetrics.MetricAccessDecodeFailure
	// MetricRefreshLatency is the refresh operation latency histogram.
	MetricRefreshLatency = internalmetrics.MetricRefreshLatency
)

// Metrics holds atomic counters and an optional refresh latency histogram.
//
//	Docs: docs/metrics.md
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance configured by cfg. When Enabled
// is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
