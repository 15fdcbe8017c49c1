package internaldefs

import (
	goRefresh "github.com/MrEthical07/goRefresh"
)

// CounterDef defines a public type used by goRefresh APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   goRefresh.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by goRefresh APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   goRefresh.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: goRefresh.MetricLoginSuccess, Name: "gorefresh_login_success_total", Help: "Successful login attempts."},
	{ID: goRefresh.MetricLoginFailure, Name: "gorefresh_login_failure_total", Help: "Failed login attempts."},
	{ID: goRefresh.MetricLoginLocked, Name: "gorefresh_login_locked_total", Help: "Login attempts refused by lockout."},
	{ID: goRefresh.MetricRefreshSuccess, Name: "gorefresh_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goRefresh.MetricRefreshFailure, Name: "gorefresh_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: goRefresh.MetricRefreshReuseDetected, Name: "gorefresh_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: goRefresh.MetricRevoke, Name: "gorefresh_revoke_total", Help: "Refresh token revocations."},
	{ID: goRefresh.MetricRegisterSuccess, Name: "gorefresh_register_success_total", Help: "Successful registrations."},
	{ID: goRefresh.MetricRegisterDuplicate, Name: "gorefresh_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: goRefresh.MetricVerifySuccess, Name: "gorefresh_verify_success_total", Help: "Successful email verifications."},
	{ID: goRefresh.MetricVerifyFailure, Name: "gorefresh_verify_failure_total", Help: "Failed email verifications."},
	{ID: goRefresh.MetricResetRequest, Name: "gorefresh_reset_request_total", Help: "Password reset requests."},
	{ID: goRefresh.MetricResetSuccess, Name: "gorefresh_reset_success_total", Help: "Successful password resets."},
	{ID: goRefresh.MetricResetFailure, Name: "gorefresh_reset_failure_total", Help: "Failed password resets."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: goRefresh.MetricRotateLatency, Name: "gorefresh_rotate_latency_seconds", Help: "Refresh rotation latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
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

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
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

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
