// Package learnauth is the session and credential engine for the LearnHub
// platform: signed short-lived access tokens, rotating opaque refresh tokens
// with a persisted audit chain, and a fixed-order role gate
// (STUDENT < INSTRUCTOR < ADMIN).
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// learnauth is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Principal, SessionPair, AuditEvent, etc.). Token encoding
// lives in codec/, refresh persistence in refresh/, and rate limiting under
// internal/. The surrounding application (course CRUD, dashboards) consumes
// only a resolved [Principal] and [Engine.Authorize]; nothing else leaks out.
//
// # What this package must NOT do
//
//   - Expose store clients or wire encodings in its public API.
//   - Mutate credential state on a failed attempt, except the deliberate
//     chain revocation performed by reuse detection.
//   - Surface raw store or codec errors; everything is translated to the
//     sentinel taxonomy in errors.go before returning.
//
// # Performance contract
//
// Resolve with a valid access token is the hot path: one token parse, no
// store round-trip (unless CheckAccountOnResolve is enabled). Refresh, Login,
// and Register are allowed one store round-trip per call.
package learnauth
