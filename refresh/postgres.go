package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema expected by PostgresStore. SupersededBy holds the successor
// row ID rather than its digest.
//
//	CREATE TABLE refresh_tokens (
//	    id            UUID PRIMARY KEY,
//	    user_id       TEXT NOT NULL,
//	    digest        TEXT NOT NULL UNIQUE,
//	    revoked       BOOLEAN NOT NULL DEFAULT FALSE,
//	    expires_at    TIMESTAMPTZ NOT NULL,
//	    superseded_by UUID REFERENCES refresh_tokens (id),
//	    created_at    TIMESTAMPTZ NOT NULL,
//	    updated_at    TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX refresh_tokens_user_idx ON refresh_tokens (user_id);

// PostgresStore persists refresh records in PostgreSQL. Rotation runs
// inside a transaction with a conditional UPDATE as the
// compare-and-swap, so it gives the same single-winner guarantee as
// the Redis backend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a [PostgresStore] on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks backend reachability and reports the round-trip time.
func (s *PostgresStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

// Insert persists a freshly minted record.
func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, digest, revoked, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, rec.ID, rec.UserID, rec.Digest, rec.Revoked, rec.ExpiresAt, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get fetches a record by digest regardless of its state. SupersededBy
// is resolved from the successor row ID to its digest so chain walks
// behave identically across backends.
func (s *PostgresStore) Get(ctx context.Context, digest string) (*Record, error) {
	rec, err := s.getByDigest(ctx, s.pool, digest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

// Rotate atomically supersedes the record for presentedDigest with next.
//
// The presented row is locked with FOR UPDATE before classification, so
// concurrent redemptions of the same secret serialize on the row: the
// first caller rotates, every later caller observes revoked = TRUE and
// gets ErrReuse. The successor is inserted before the presented row is
// linked to it; the superseded_by foreign key is checked per statement,
// so the target row must exist by the time the UPDATE runs.
func (s *PostgresStore) Rotate(ctx context.Context, presentedDigest string, next *Record) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var (
		userID    string
		revoked   bool
		expiresAt time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT user_id, revoked, expires_at FROM refresh_tokens
		WHERE digest = $1
		FOR UPDATE
	`, presentedDigest).Scan(&userID, &revoked, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if revoked {
		return userID, ErrReuse
	}
	if !expiresAt.After(time.Now()) {
		return "", ErrExpired
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, digest, revoked, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $5, $5)
	`, next.ID, userID, next.Digest, next.ExpiresAt, next.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, superseded_by = $1, updated_at = now()
		WHERE digest = $2
	`, next.ID, presentedDigest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	next.UserID = userID
	return userID, nil
}

// Revoke marks a single record revoked. Missing records are a no-op.
func (s *PostgresStore) Revoke(ctx context.Context, digest string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, updated_at = now() WHERE digest = $1
	`, digest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeChain revokes the record for digest and every successor in one
// recursive statement.
func (s *PostgresStore) RevokeChain(ctx context.Context, digest string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		WITH RECURSIVE chain AS (
		    SELECT id, superseded_by FROM refresh_tokens WHERE digest = $1
		    UNION ALL
		    SELECT t.id, t.superseded_by
		    FROM refresh_tokens t
		    JOIN chain c ON t.id = c.superseded_by
		)
		UPDATE refresh_tokens
		SET revoked = TRUE, updated_at = now()
		WHERE id IN (SELECT id FROM chain) AND revoked = FALSE
	`, digest)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// RevokeAllForUser revokes every live record belonging to the user.
// The single UPDATE either lands or it does not, so a partial
// revocation cannot happen on this backend.
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, updated_at = now()
		WHERE user_id = $1 AND revoked = FALSE AND expires_at > now()
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// ActiveCountForUser returns the number of live records for a user.
func (s *PostgresStore) ActiveCountForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE AND expires_at > now()
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

func (s *PostgresStore) getByDigest(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, digest string,
) (*Record, error) {
	var (
		rec          Record
		supersededBy *string
	)
	row := q.QueryRow(ctx, `
		SELECT t.id, t.user_id, t.revoked, t.expires_at, t.created_at, t.updated_at, s.digest
		FROM refresh_tokens t
		LEFT JOIN refresh_tokens s ON s.id = t.superseded_by
		WHERE t.digest = $1
	`, digest)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Revoked, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt, &supersededBy); err != nil {
		return nil, err
	}
	rec.Digest = digest
	if supersededBy != nil {
		rec.SupersededBy = *supersededBy
	}
	return &rec, nil
}
