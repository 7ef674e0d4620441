package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, cfg), mr
}

func TestLoginBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		MaxLoginAttempts:      3,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.CheckLogin(ctx, "alice@example.com", ""); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if err := limiter.IncrementLogin(ctx, "alice@example.com", ""); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	// Fourth failure blows the budget.
	if err := limiter.IncrementLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("increment over budget = %v, want ErrRateLimited", err)
	}
	if err := limiter.CheckLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("check over budget = %v, want ErrRateLimited", err)
	}

	// Other identifiers are unaffected.
	if err := limiter.CheckLogin(ctx, "bob@example.com", ""); err != nil {
		t.Errorf("unrelated identifier throttled: %v", err)
	}
}

func TestLoginReset(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = limiter.IncrementLogin(ctx, "alice@example.com", "")
	}
	if err := limiter.CheckLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected throttle before reset, got %v", err)
	}

	if err := limiter.ResetLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("ResetLogin: %v", err)
	}
	if err := limiter.CheckLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("check after reset: %v", err)
	}

	attempts, err := limiter.GetLoginAttempts(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetLoginAttempts: %v", err)
	}
	if attempts != 0 {
		t.Errorf("attempts after reset = %d", attempts)
	}
}

func TestIPThrottle(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	// Same IP, different emails: the per-IP counter still trips. The
	// third increment already exceeds the per-email budget, but the
	// per-IP counter must keep advancing regardless.
	for i := 0; i < 3; i++ {
		err := limiter.IncrementLogin(ctx, "alice@example.com", "203.0.113.9")
		if i < 2 && err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if i == 2 && !errors.Is(err, ErrRateLimited) {
			t.Fatalf("increment %d = %v, want ErrRateLimited", i, err)
		}
	}
	if err := limiter.CheckLogin(ctx, "bob@example.com", "203.0.113.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("per-IP check = %v, want ErrRateLimited", err)
	}
	if err := limiter.CheckLogin(ctx, "bob@example.com", "198.51.100.7"); err != nil {
		t.Errorf("unrelated IP throttled: %v", err)
	}
}

func TestRefreshBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		EnableRefreshThrottle:   true,
		MaxRefreshAttempts:      2,
		RefreshCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.CheckRefresh(ctx, "digest-1"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := limiter.CheckRefresh(ctx, "digest-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("over budget = %v, want ErrRateLimited", err)
	}
	if err := limiter.CheckRefresh(ctx, "digest-2"); err != nil {
		t.Errorf("unrelated chain throttled: %v", err)
	}
}

func TestRefreshThrottleDisabled(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{
		EnableRefreshThrottle: false,
		MaxRefreshAttempts:    1,
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := limiter.CheckRefresh(ctx, "digest-1"); err != nil {
			t.Fatalf("disabled throttle returned %v", err)
		}
	}
}

func TestWindowExpiry(t *testing.T) {
	limiter, mr := newTestLimiter(t, Config{
		MaxLoginAttempts:      1,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = limiter.IncrementLogin(ctx, "alice@example.com", "")
	}
	if err := limiter.CheckLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected throttle, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := limiter.CheckLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("window did not expire: %v", err)
	}
}
