package convauth

// SecurityReport returns a read-only snapshot of the engine's security
// posture for startup logging and operational review. It exposes switches
// and durations only, never key material.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	return SecurityReport{
		ProductionMode:        cfg.Security.ProductionMode,
		AccessTTL:             cfg.Token.AccessTTL,
		RefreshTTL:            cfg.Refresh.TTL,
		RotationThreshold:     "half-lifetime",
		DeviceBindingEnabled:  cfg.DeviceBinding.Enabled,
		DeviceBindingRequired: cfg.DeviceBinding.Enabled && cfg.DeviceBinding.RequireDeviceID,
		ReplayTrackingEnabled: cfg.Session.EnableReplayTracking,
		SessionCapsActive:     cfg.Session.MaxSessionsPerUser > 0 || cfg.Session.EnforceSingleSession,
		RateLimitingActive:    cfg.RateLimit.EnableSignInThrottle || cfg.RateLimit.EnableRefreshThrottle,
		AuditEnabled:          cfg.Audit.Enabled,
		MetricsEnabled:        cfg.Metrics.Enabled,
		SecureCookies:         cfg.SecureCookies(),
	}
}
