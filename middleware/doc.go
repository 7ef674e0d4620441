// Package middleware exposes HTTP adapters over the learnauth Engine:
// principal resolution with transparent refresh, role gating, and
// cookie delivery for browser clients.
//
// # Guards
//
//   - [Authenticate] — resolves a principal from the bearer header or
//     cookies; when the engine rotates credentials mid-request the new
//     pair is re-set as cookies before the handler runs.
//   - [RequireRole] — rejects principals below the required role.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It makes
// no authentication decisions itself — pass/reject comes from
// Engine.Resolve and Engine.Authorize.
//
// # What this package must NOT do
//
//   - Parse or mint tokens directly.
//   - Touch the refresh store.
package middleware
