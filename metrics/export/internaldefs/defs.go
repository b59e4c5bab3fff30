package internaldefs

import (
	convauth "github.com/mzfr7/convauth"
)

// CounterDef maps a metric ID to its exposition name and help text.
type CounterDef struct {
	ID   convauth.MetricID
	Name string
	Help string
}

// HistogramDef maps a histogram metric ID to its exposition name and help
// text.
type HistogramDef struct {
	ID   convauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter exporters expose, in stable order.
var CounterDefs = []CounterDef{
	{ID: convauth.MetricSignInSuccess, Name: "convauth_signin_success_total", Help: "Completed sign-ins."},
	{ID: convauth.MetricSignInIncomplete, Name: "convauth_signin_incomplete_total", Help: "Sign-ins with an incomplete profile."},
	{ID: convauth.MetricSignInRateLimited, Name: "convauth_signin_rate_limited_total", Help: "Throttled sign-in attempts."},
	{ID: convauth.MetricSessionCreated, Name: "convauth_session_created_total", Help: "Created session records."},
	{ID: convauth.MetricSessionLimitExceeded, Name: "convauth_session_limit_exceeded_total", Help: "Sign-ins denied by the per-user session cap."},
	{ID: convauth.MetricRefreshSuccess, Name: "convauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: convauth.MetricRefreshRotated, Name: "convauth_refresh_rotated_total", Help: "Refreshes that rotated the refresh token."},
	{ID: convauth.MetricRefreshFailure, Name: "convauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: convauth.MetricRefreshRateLimited, Name: "convauth_refresh_rate_limited_total", Help: "Throttled refresh attempts."},
	{ID: convauth.MetricReuseDetected, Name: "convauth_reuse_detected_total", Help: "Consumed refresh tokens presented again."},
	{ID: convauth.MetricRotationRaceLost, Name: "convauth_rotation_race_lost_total", Help: "Rotations lost to a concurrent winner."},
	{ID: convauth.MetricDeviceRejected, Name: "convauth_device_rejected_total", Help: "Requests rejected by device binding enforcement."},
	{ID: convauth.MetricSessionMismatch, Name: "convauth_session_mismatch_total", Help: "Refresh tokens presented under the wrong session key."},
	{ID: convauth.MetricSessionRevoked, Name: "convauth_session_revoked_total", Help: "Defensive session revocations."},
	{ID: convauth.MetricSignOut, Name: "convauth_signout_total", Help: "Single-session sign-outs."},
	{ID: convauth.MetricSignOutAll, Name: "convauth_signout_all_total", Help: "Sign-out-everywhere operations."},
	{ID: convauth.MetricSweepRemoved, Name: "convauth_sweep_removed_total", Help: "Session records removed by the sweeper."},
	{ID: convauth.MetricAccessDecodeFailure, Name: "convauth_access_decode_failure_total", Help: "Access token decode failures."},
}

// HistogramDefs lists every histogram exporters expose.
var HistogramDefs = []HistogramDef{
	{ID: convauth.MetricRefreshLatency, Name: "convauth_refresh_latency_seconds", Help: "Refresh operation latency histogram."},
}

// HistogramBounds are the upper bucket bounds in Prometheus le-label form.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix carries the same bounds in identifier-safe form for
// exporters that cannot use labels.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed bucket
// count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms use.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
