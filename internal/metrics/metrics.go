package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram tracked by the engine.
type MetricID uint16

const (
	MetricSignInSuccess MetricID = iota
	MetricSignInIncomplete
	MetricSignInRateLimited
	MetricSessionCreated
	MetricSessionLimitExceeded
	MetricRefreshSuccess
	MetricRefreshRotated
	MetricRefreshFailure
	MetricRefreshRateLimited
	MetricReuseDetected
	MetricRotationRaceLost
	MetricDeviceRejected
	MetricSessionMismatch
	MetricSessionRevoked
	MetricSignOut
	MetricSignOutAll
	MetricSweepRemoved
	MetricAccessDecodeFailure
	MetricRefreshLatency

	MetricIDCount
)

// histogramBucketCount matches the exporter bucket layout (7 bounds + +Inf).
const histogramBucketCount = 8

var latencyBoundsNanos = [histogramBucketCount - 1]int64{
	int64(5 * time.Millisecond),
	int64(10 * time.Millisecond),
	int64(25 * time.Millisecond),
	int64(50 * time.Millisecond),
	int64(100 * time.Millisecond),
	int64(250 * time.Millisecond),
	int64(500 * time.Millisecond),
}

// Config controls which instrument families are active.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds lock-free counters and optional latency histograms.
// All methods are safe for concurrent use; a nil or disabled Metrics
// turns every operation into a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]atomic.Uint64
	latency       [histogramBucketCount]atomic.Uint64
}

// Snapshot is a point-in-time deep copy of all instrument values.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// New creates a Metrics instance from cfg.
func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Add increments the counter for id by delta.
func (m *Metrics) Add(id MetricID, delta uint64) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(delta)
}

// Observe records a refresh latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricRefreshLatency {
		return
	}

	nanos := d.Nanoseconds()
	bucket := histogramBucketCount - 1
	for i, bound := range latencyBoundsNanos {
		if nanos <= bound {
			bucket = i
			break
		}
	}
	m.latency[bucket].Add(1)
}

// LatencyEnabled reports whether latency histograms are recording.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Snapshot returns a deep copy of the current values.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Counters:   make(map[MetricID]uint64, MetricIDCount),
		Histograms: make(map[MetricID][]uint64),
	}
	if m == nil || !m.enabled {
		return snap
	}

	for id := MetricID(0); id < MetricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}

	if m.enableLatency {
		buckets := make([]uint64, histogramBucketCount)
		for i := range buckets {
			buckets[i] = m.latency[i].Load()
		}
		snap.Histograms[MetricRefreshLatency] = buckets
	}

	return snap
}
