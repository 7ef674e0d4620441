package internaldefs

import (
	learnauth "github.com/learnhub-dev/learnauth"
)

// CounterDef maps one engine counter to an exported metric name.
type CounterDef struct {
	ID   learnauth.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to an exported metric name.
type HistogramDef struct {
	ID   learnauth.MetricID
	Name string
	Help string
}

// CounterDefs is the shared counter registry for all exporters.
var CounterDefs = []CounterDef{
	{ID: learnauth.MetricLoginSuccess, Name: "learnauth_login_success_total", Help: "Successful login attempts."},
	{ID: learnauth.MetricLoginFailure, Name: "learnauth_login_failure_total", Help: "Failed login attempts."},
	{ID: learnauth.MetricLoginRateLimited, Name: "learnauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: learnauth.MetricRegisterSuccess, Name: "learnauth_register_success_total", Help: "Successful account registrations."},
	{ID: learnauth.MetricRegisterDuplicate, Name: "learnauth_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: learnauth.MetricRefreshSuccess, Name: "learnauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: learnauth.MetricRefreshFailure, Name: "learnauth_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: learnauth.MetricRefreshReuseDetected, Name: "learnauth_refresh_reuse_detected_total", Help: "Detected refresh secret reuses."},
	{ID: learnauth.MetricRefreshRateLimited, Name: "learnauth_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: learnauth.MetricChainRevoked, Name: "learnauth_chain_revoked_total", Help: "Refresh chains revoked after reuse detection."},
	{ID: learnauth.MetricSessionIssued, Name: "learnauth_session_issued_total", Help: "Issued credential pairs."},
	{ID: learnauth.MetricResolveSuccess, Name: "learnauth_resolve_success_total", Help: "Successful principal resolutions."},
	{ID: learnauth.MetricResolveFallback, Name: "learnauth_resolve_fallback_total", Help: "Resolutions served via refresh fallback."},
	{ID: learnauth.MetricResolveFailure, Name: "learnauth_resolve_failure_total", Help: "Failed principal resolutions."},
	{ID: learnauth.MetricForbidden, Name: "learnauth_forbidden_total", Help: "Role gate rejections."},
	{ID: learnauth.MetricLogout, Name: "learnauth_logout_total", Help: "Single-session logout operations."},
	{ID: learnauth.MetricLogoutAll, Name: "learnauth_logout_all_total", Help: "Logout-all operations."},
	{ID: learnauth.MetricLogoutAllPartial, Name: "learnauth_logout_all_partial_total", Help: "Logout-all operations with partial revocation."},
}

// HistogramDefs is the shared histogram registry for all exporters.
var HistogramDefs = []HistogramDef{
	{ID: learnauth.MetricResolveLatency, Name: "learnauth_resolve_latency_seconds", Help: "Resolve latency histogram."},
}

// HistogramBounds are the textual upper bounds matching the engine's
// fixed buckets.
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

// HistogramBoundSuffix holds bound spellings safe for metric names.
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

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed size.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
