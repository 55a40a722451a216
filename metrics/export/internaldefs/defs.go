package internaldefs

import (
	goRoam "github.com/MrEthical07/goRoam"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goRoam.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   goRoam.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goRoam.MetricRoamingCookieIssued, Name: "goroam_roaming_cookie_issued_total", Help: "Roaming cookies set on login."},
	{ID: goRoam.MetricRoamingCookieCleared, Name: "goroam_roaming_cookie_cleared_total", Help: "Roaming cookies deleted on logout or after rejection."},
	{ID: goRoam.MetricRoamingCookieRejected, Name: "goroam_roaming_cookie_rejected_total", Help: "Presented roaming cookies that failed validation."},
	{ID: goRoam.MetricRoamingDomainSkipped, Name: "goroam_roaming_domain_skipped_total", Help: "Requests outside the bound domain."},
	{ID: goRoam.MetricSessionEstablished, Name: "goroam_session_established_total", Help: "Anonymous requests authenticated from the roaming cookie."},
	{ID: goRoam.MetricSessionTakeover, Name: "goroam_session_takeover_total", Help: "Local sessions replaced by the roaming identity."},
	{ID: goRoam.MetricForcedLogout, Name: "goroam_forced_logout_total", Help: "Roaming-eligible sessions terminated without a valid cookie."},
	{ID: goRoam.MetricLinkSuccess, Name: "goroam_link_success_total", Help: "Successful account links."},
	{ID: goRoam.MetricLinkFailure, Name: "goroam_link_failure_total", Help: "Account links rejected for site or credential reasons."},
	{ID: goRoam.MetricLinkConflict, Name: "goroam_link_conflict_total", Help: "Account links rejected because the identity belongs to another primary."},
	{ID: goRoam.MetricUnlinkSuccess, Name: "goroam_unlink_success_total", Help: "Successful unlinks."},
	{ID: goRoam.MetricUnlinkDenied, Name: "goroam_unlink_denied_total", Help: "Rejected unlinks."},
	{ID: goRoam.MetricCleanupFailure, Name: "goroam_cleanup_failure_total", Help: "Failed deferred-removal marks."},
	{ID: goRoam.MetricLoginURLIssued, Name: "goroam_login_url_issued_total", Help: "Generated remote-login URLs."},
	{ID: goRoam.MetricRemoteLoginSuccess, Name: "goroam_remote_login_success_total", Help: "Sessions established from remote-login tokens."},
	{ID: goRoam.MetricRemoteLoginFailure, Name: "goroam_remote_login_failure_total", Help: "Rejected remote-login tokens."},
	{ID: goRoam.MetricRemoteLoginRateLimited, Name: "goroam_remote_login_rate_limited_total", Help: "Remote logins refused by the attempt limiter."},
	{ID: goRoam.MetricRemoteLoginReplay, Name: "goroam_remote_login_replay_total", Help: "Reuses of a consumed remote-login token."},
	{ID: goRoam.MetricReauthBypassed, Name: "goroam_reauth_bypassed_total", Help: "Reauthentication prompts skipped for an existing session."},
	{ID: goRoam.MetricSignupReserved, Name: "goroam_signup_reserved_total", Help: "Signups refused for shadowing a roaming identity."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goRoam.MetricValidateSessionLatency, Name: "goroam_validate_session_latency_seconds", Help: "OnValidateSession latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching
// goRoam.HistogramBucketBounds plus the unbounded bucket.
var HistogramBounds = []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1}

// HistogramBoundSuffix names each bucket, unbounded last, for exporters that
// flatten buckets into gauges.
var HistogramBoundSuffix = []string{
	"0_001",
	"0_002",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

// AuditDroppedName is the counter reporting audit events lost to backpressure.
const AuditDroppedName = "goroam_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
