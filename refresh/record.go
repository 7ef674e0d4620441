package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the presented digest.
	ErrNotFound = errors.New("refresh record not found")
	// ErrReuse is returned when the presented digest matches a revoked
	// record. The secret was already spent: either a replay or theft.
	ErrReuse = errors.New("refresh secret reuse")
	// ErrExpired is returned when the record exists but its expiry has passed.
	ErrExpired = errors.New("refresh record expired")
	// ErrUnavailable wraps backend transport failures.
	ErrUnavailable = errors.New("refresh store unavailable")
	// ErrPartialRevocation is returned when a bulk revocation revoked
	// some records but could not reach the rest.
	ErrPartialRevocation = errors.New("partial revocation")
)

// Record is one link in a refresh-token chain. Digest is the SHA-256
// hex digest of the secret; the secret itself is never stored.
// SupersededBy points at the successor record and is empty for the
// newest link in the chain.
type Record struct {
	ID           string
	UserID       string
	Digest       string
	Revoked      bool
	ExpiresAt    time.Time
	SupersededBy string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the record can still redeem a refresh at the
// given instant.
func (r *Record) Active(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// Store is the persistence contract for refresh-token records.
//
// Rotate is the heart of the rotation protocol: it must atomically
// verify that the record for presentedDigest is live, revoke it, link
// it to next, and insert next — or fail without side effects. Under
// concurrent calls with the same presentedDigest exactly one call may
// succeed; the rest must observe ErrReuse.
type Store interface {
	// Insert persists a freshly minted record.
	Insert(ctx context.Context, rec *Record) error

	// Get fetches a record by digest regardless of its state.
	Get(ctx context.Context, digest string) (*Record, error)

	// Rotate atomically supersedes the record for presentedDigest with
	// next and returns the owning user ID. next.UserID is filled in
	// from the superseded record. Returns ErrNotFound, ErrReuse, or
	// ErrExpired when the presented digest cannot be redeemed.
	Rotate(ctx context.Context, presentedDigest string, next *Record) (string, error)

	// Revoke marks a single record revoked. Revoking a missing or
	// already-revoked record is a no-op.
	Revoke(ctx context.Context, digest string) error

	// RevokeChain revokes the record for digest and every successor
	// reachable through SupersededBy links. Returns the number of
	// records newly revoked.
	RevokeChain(ctx context.Context, digest string) (int, error)

	// RevokeAllForUser revokes every live record belonging to the user.
	// Returns the number revoked; a partial failure returns the count
	// alongside ErrPartialRevocation.
	RevokeAllForUser(ctx context.Context, userID string) (int, error)

	// ActiveCountForUser returns the number of live records for a user.
	ActiveCountForUser(ctx context.Context, userID string) (int, error)
}
