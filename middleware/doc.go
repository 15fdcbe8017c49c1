// Package middleware exposes HTTP middleware adapters built on top of
// goRefresh.Engine access-token validation.
//
// # Guards
//
//   - [Guard] — stateless access-token verification, no store call.
//   - [RequireRole] — role check layered on a guarded route.
//
// The authenticated principal is exposed to downstream handlers through
// [AuthResultFromContext].
package middleware
