package goRoam

import (
	"sync/atomic"
	"time"
)

// MetricID identifies an engine counter.
type MetricID uint16

const (
	// MetricRoamingCookieIssued counts roaming cookies set on login.
	MetricRoamingCookieIssued MetricID = iota
	// MetricRoamingCookieCleared counts roaming cookies deleted on logout or after rejection.
	MetricRoamingCookieCleared
	// MetricRoamingCookieRejected counts present cookies that failed validation.
	MetricRoamingCookieRejected
	// MetricRoamingDomainSkipped counts requests outside the bound domain.
	MetricRoamingDomainSkipped
	// MetricSessionEstablished counts anonymous requests authenticated from the cookie.
	MetricSessionEstablished
	// MetricSessionTakeover counts local sessions replaced by the cookie identity.
	MetricSessionTakeover
	// MetricForcedLogout counts roaming-eligible sessions terminated for lack of a cookie.
	MetricForcedLogout
	// MetricLinkSuccess counts successful links.
	MetricLinkSuccess
	// MetricLinkFailure counts links rejected for site or credential reasons.
	MetricLinkFailure
	// MetricLinkConflict counts links rejected because the identity belongs to another primary.
	MetricLinkConflict
	// MetricUnlinkSuccess counts successful unlinks.
	MetricUnlinkSuccess
	// MetricUnlinkDenied counts rejected unlinks.
	MetricUnlinkDenied
	// MetricCleanupFailure counts failed deferred-removal marks.
	MetricCleanupFailure
	// MetricLoginURLIssued counts generated remote-login URLs.
	MetricLoginURLIssued
	// MetricRemoteLoginSuccess counts sessions established from remote-login tokens.
	MetricRemoteLoginSuccess
	// MetricRemoteLoginFailure counts rejected remote-login tokens.
	MetricRemoteLoginFailure
	// MetricRemoteLoginRateLimited counts remote logins refused by the attempt limiter.
	MetricRemoteLoginRateLimited
	// MetricRemoteLoginReplay counts reuses of a consumed token.
	MetricRemoteLoginReplay
	// MetricReauthBypassed counts reauth prompts skipped for an existing session.
	MetricReauthBypassed
	// MetricSignupReserved counts signups refused for shadowing a roaming identity.
	MetricSignupReserved
	// MetricValidateSessionLatency is the OnValidateSession latency histogram.
	MetricValidateSessionLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBucketBounds are the upper bounds of the latency buckets. The last
// bucket is unbounded.
var HistogramBucketBounds = [histBucketCount - 1]time.Duration{
	time.Millisecond,
	2 * time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a set of lock-free in-process counters. A nil or disabled
// Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only histogram metrics accept samples.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateSessionLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current counter value.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if m == nil || !m.enabled {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricValidateSessionLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateSessionLatency].buckets[i])
		}
		s.Histograms[MetricValidateSessionLatency] = buckets
	}
	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range HistogramBucketBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
