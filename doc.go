// Package goRefresh provides a low-latency token lifecycle engine with JWT access
// tokens, rotating JWT refresh tokens persisted per principal, lockout-based
// credential throttling, and pluggable principal storage (Redis, Postgres, memory).
//
// The package is designed for concurrent server workloads: Engine methods are safe
// to call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goRefresh is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (TokenPair, LoginResult, MetricsSnapshot, etc.). Token encoding lives
// in the token subpackage, persistence in the principal subpackage, and the
// client-side renewal transport in the guardian subpackage.
//
// # What this package must NOT do
//
//   - Expose store clients, SQL handles, or codec internals in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Import any sub-package that re-imports goRefresh (no import cycles).
//
// # Performance contract
//
// ValidateAccess is the hot path. It must not allocate beyond the returned result
// struct and never touches the principal store: access tokens are validated by
// signature and expiry alone. Login, Refresh, and account operations hold no
// locks across their store round-trips.
package goRefresh
