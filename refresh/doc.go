// Package refresh persists refresh-token records and implements the
// atomic rotation step that keeps exactly one live secret per chain.
//
// A record never stores the secret itself, only its SHA-256 digest.
// Revoking a record keeps the row around until its natural expiry so
// that a replay of the old secret is distinguishable from garbage:
// a revoked row means reuse, a missing row means an unknown token.
//
// Two backends are provided. RedisStore is the default and performs
// rotation with a Lua compare-and-swap script, so concurrent refreshes
// of the same secret have exactly one winner. PostgresStore offers the
// same contract on top of a conditional UPDATE inside a transaction,
// for deployments that want refresh state in their relational store.
//
// # What this package must NOT do
//
//   - Generate or hash secrets (the engine owns that).
//   - Decide policy: reuse handling, throttling, and chain revocation
//     triggers live in the engine.
package refresh
