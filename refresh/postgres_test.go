//go:build integration

package refresh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresTestSchema = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
    id            UUID PRIMARY KEY,
    user_id       TEXT NOT NULL,
    digest        TEXT NOT NULL UNIQUE,
    revoked       BOOLEAN NOT NULL DEFAULT FALSE,
    expires_at    TIMESTAMPTZ NOT NULL,
    superseded_by UUID REFERENCES refresh_tokens (id),
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS refresh_tokens_user_idx ON refresh_tokens (user_id);
`

// newPostgresStoreTest connects to the database named by
// LEARNAUTH_POSTGRES_DSN and hands back a store over a clean table.
// Run these with: go test -tags integration ./refresh
func newPostgresStoreTest(t *testing.T) (*PostgresStore, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("LEARNAUTH_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEARNAUTH_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, postgresTestSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE refresh_tokens`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	return NewPostgresStore(pool), pool
}

func TestPostgresInsertAndGet(t *testing.T) {
	store, _ := newPostgresStoreTest(t)
	ctx := context.Background()

	rec := testRecord("u-1", "d-1")
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.Get(ctx, "d-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != rec.ID || got.UserID != "u-1" || got.Revoked || got.SupersededBy != "" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.Active(time.Now()) {
		t.Fatal("fresh record should be active")
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresRotateHappyPath(t *testing.T) {
	store, _ := newPostgresStoreTest(t)
	ctx := context.Background()

	old := testRecord("u-1", "d-old")
	if err := store.Insert(ctx, old); err != nil {
		t.Fatalf("insert: %v", err)
	}

	next := testRecord("", "d-new")
	userID, err := store.Rotate(ctx, "d-old", next)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if userID != "u-1" || next.UserID != "u-1" {
		t.Fatalf("expected owner u-1, got %q / %q", userID, next.UserID)
	}

	oldRec, err := store.Get(ctx, "d-old")
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if !oldRec.Revoked {
		t.Fatal("superseded record should be revoked")
	}
	if oldRec.SupersededBy != "d-new" {
		t.Fatalf("expected chain link to d-new, got %q", oldRec.SupersededBy)
	}

	newRec, err := store.Get(ctx, "d-new")
	if err != nil {
		t.Fatalf("get new: %v", err)
	}
	if newRec.Revoked || newRec.SupersededBy != "" {
		t.Fatalf("successor should be live and unlinked: %+v", newRec)
	}
}

func TestPostgresRotateDeadDigests(t *testing.T) {
	store, pool := newPostgresStoreTest(t)
	ctx := context.Background()

	if _, err := store.Rotate(ctx, "unknown", testRecord("", "d-x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Insert(ctx, testRecord("u-1", "d-old")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Rotate(ctx, "d-old", testRecord("", "d-new")); err != nil {
		t.Fatalf("first rotate: %v", err)
	}

	// Second redemption of the same secret is reuse, not absence.
	userID, err := store.Rotate(ctx, "d-old", testRecord("", "d-new2"))
	if !errors.Is(err, ErrReuse) {
		t.Fatalf("expected ErrReuse, got %v", err)
	}
	if userID != "u-1" {
		t.Fatalf("reuse should still identify the owner, got %q", userID)
	}

	// Push the live record past its logical expiry in place.
	if _, err := pool.Exec(ctx, `
		UPDATE refresh_tokens SET expires_at = now() - interval '1 hour' WHERE digest = 'd-new'
	`); err != nil {
		t.Fatalf("force expiry: %v", err)
	}
	if _, err := store.Rotate(ctx, "d-new", testRecord("", "d-new3")); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestPostgresRotateSingleWinner(t *testing.T) {
	store, _ := newPostgresStoreTest(t)
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("u-1", "d-seed")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		reuses  int
		unknown []error
	)

	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := store.Rotate(ctx, "d-seed", testRecord("", fmt.Sprintf("d-next-%d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrReuse):
				reuses++
			default:
				unknown = append(unknown, err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if reuses != racers-1 {
		t.Fatalf("expected %d reuse losers, got %d (other errors: %v)", racers-1, reuses, unknown)
	}
}

func TestPostgresRevokeChain(t *testing.T) {
	store, _ := newPostgresStoreTest(t)
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("u-1", "d-1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Rotate(ctx, "d-1", testRecord("", "d-2")); err != nil {
		t.Fatalf("rotate 1: %v", err)
	}
	if _, err := store.Rotate(ctx, "d-2", testRecord("", "d-3")); err != nil {
		t.Fatalf("rotate 2: %v", err)
	}

	// d-1 and d-2 are already revoked by rotation; only d-3 is live.
	revoked, err := store.RevokeChain(ctx, "d-1")
	if err != nil {
		t.Fatalf("revoke chain: %v", err)
	}
	if revoked != 1 {
		t.Fatalf("expected 1 newly revoked record, got %d", revoked)
	}

	tip, err := store.Get(ctx, "d-3")
	if err != nil {
		t.Fatalf("get tip: %v", err)
	}
	if !tip.Revoked {
		t.Fatal("chain tip should be revoked")
	}
}

func TestPostgresRevokeAllForUser(t *testing.T) {
	store, _ := newPostgresStoreTest(t)
	ctx := context.Background()

	for _, digest := range []string{"d-a", "d-b", "d-c"} {
		if err := store.Insert(ctx, testRecord("u-1", digest)); err != nil {
			t.Fatalf("insert %s: %v", digest, err)
		}
	}
	if err := store.Insert(ctx, testRecord("u-2", "d-other")); err != nil {
		t.Fatalf("insert other user: %v", err)
	}

	count, err := store.ActiveCountForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 active records, got %d", count)
	}

	revoked, err := store.RevokeAllForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("expected 3 revoked, got %d", revoked)
	}

	count, err = store.ActiveCountForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("active count after revoke: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 active records, got %d", count)
	}

	// Second pass is a no-op, not an error.
	revoked, err = store.RevokeAllForUser(ctx, "u-1")
	if err != nil || revoked != 0 {
		t.Fatalf("second revoke all: count=%d err=%v", revoked, err)
	}

	otherCount, err := store.ActiveCountForUser(ctx, "u-2")
	if err != nil || otherCount != 1 {
		t.Fatalf("other user should be untouched: count=%d err=%v", otherCount, err)
	}
}
