// Package codec produces and validates the platform's signed access tokens.
//
// A token is a self-contained claim set {subject, email, role, expiry};
// validity is fully determined by signature and clock, so Verify needs no
// store access. Failures are typed ([ErrMalformed], [ErrBadSignature],
// [ErrExpired]) so callers can tell "retry with refresh" apart from "reject".
//
// The codec is a pure function of its configured key and the clock: no side
// effects, no global state.
package codec
