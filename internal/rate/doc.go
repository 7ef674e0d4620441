// Package rate implements Redis-backed fixed-window throttles for the
// login and refresh paths.
//
// # Window semantics
//
// Counters use INCR plus a conditional EXPIRE on the first hit of a
// window. Key prefixes:
//   - rl:e: — login attempts per email
//   - rl:i: — login attempts per client IP
//   - rl:r: — refresh attempts per chain
//
// Counters are advisory: a Redis outage surfaces as ErrRedisUnavailable
// and the caller decides whether to fail open or closed.
package rate
