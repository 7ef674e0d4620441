package learnauth

import (
	"context"
	"errors"
	"testing"
)

func TestRefreshRotation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	res := registerTestUser(t, engine, "alice@example.com", RoleStudent)

	pair, err := engine.Refresh(ctx, res.Pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.RefreshToken == res.Pair.RefreshToken {
		t.Fatal("rotation must mint a new secret")
	}
	if pair.AccessToken == "" {
		t.Fatal("rotation must mint a new access token")
	}

	// The new secret keeps working.
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh(new secret): %v", err)
	}
}

func TestRefreshSingleUse(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	res := registerTestUser(t, engine, "alice@example.com", RoleStudent)

	if _, err := engine.Refresh(ctx, res.Pair.RefreshToken); err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if _, err := engine.Refresh(ctx, res.Pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("second redemption = %v, want ErrRefreshInvalid", err)
	}
}

func TestRefreshReuseRevokesChain(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	res := registerTestUser(t, engine, "alice@example.com", RoleStudent)

	winner, err := engine.Refresh(ctx, res.Pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Replay of the superseded secret: the whole chain goes down,
	// including the winner's fresh credentials.
	if _, err := engine.Refresh(ctx, res.Pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("replay = %v, want ErrRefreshInvalid", err)
	}
	if _, err := engine.Refresh(ctx, winner.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("winner after replay = %v, want ErrRefreshInvalid", err)
	}
}

func TestRefreshReuseKeepsChainWithoutHardening(t *testing.T) {
	engine, _, _ := newTestEngine(t, func(cfg *Config) {
		cfg.Security.RevokeChainOnReuse = false
	})
	ctx := context.Background()

	res := registerTestUser(t, engine, "alice@example.com", RoleStudent)

	winner, err := engine.Refresh(ctx, res.Pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := engine.Refresh(ctx, res.Pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("replay = %v, want ErrRefreshInvalid", err)
	}

	// Without chain revocation the winner's secret stays valid.
	if _, err := engine.Refresh(ctx, winner.RefreshToken); err != nil {
		t.Fatalf("winner after replay = %v, want success", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Refresh(ctx, "never-issued-secret"); !errors.Is(err, ErrRefreshInvalid) {
		t.Errorf("Refresh(unknown) = %v, want ErrRefreshInvalid", err)
	}
	if _, err := engine.Refresh(ctx, ""); !errors.Is(err, ErrRefreshInvalid) {
		t.Errorf("Refresh(empty) = %v, want ErrRefreshInvalid", err)
	}
}

func TestRefreshMissingAccount(t *testing.T) {
	engine, _, provider := newTestEngine(t)
	ctx := context.Background()

	res := registerTestUser(t, engine, "alice@example.com", RoleStudent)
	provider.remove(res.Principal.UserID)

	if _, err := engine.Refresh(ctx, res.Pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("Refresh(deleted account) = %v, want ErrRefreshInvalid", err)
	}

	count, err := engine.ActiveSessionCount(ctx, res.Principal.UserID)
	if err != nil {
		t.Fatalf("ActiveSessionCount: %v", err)
	}
	if count != 0 {
		t.Errorf("orphaned chain not cleaned up, count = %d", count)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	engine, _, _ := newTestEngine(t, func(cfg *Config) {
		cfg.Security.MaxRefreshAttempts = 2
	})
	ctx := context.Background()

	// Hammering one dead digest burns its budget.
	for i := 0; i < 2; i++ {
		if _, err := engine.Refresh(ctx, "stolen-guess"); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := engine.Refresh(ctx, "stolen-guess"); !errors.Is(err, ErrRefreshRateLimited) {
		t.Fatalf("Refresh over budget = %v, want ErrRefreshRateLimited", err)
	}
}
