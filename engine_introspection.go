package learnauth

import (
	"context"
	"errors"
	"time"

	"github.com/learnhub-dev/learnauth/codec"
)

// TokenInfo is the safe introspection view of an access token. It
// never exposes signature or refresh material.
type TokenInfo struct {
	UserID    string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	Expired   bool
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Inspect verifies an access token and returns its claims without any
// refresh fallback. Expired tokens are still decoded (Expired is set)
// so operators can inspect recently lapsed credentials; malformed or
// forged tokens fail with ErrUnauthenticated.
func (e *Engine) Inspect(accessToken string) (*TokenInfo, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	expired := false
	claims, err := e.codec.Verify(accessToken)
	if err != nil {
		if !errors.Is(err, codec.ErrExpired) {
			return nil, ErrUnauthenticated
		}
		expired = true
		claims, err = e.codec.Decode(accessToken)
		if err != nil {
			return nil, ErrUnauthenticated
		}
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	info := &TokenInfo{
		UserID:  claims.Subject,
		Email:   claims.Email,
		Role:    role,
		Expired: expired,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Health pings the refresh store when the backend supports it.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.store == nil {
		return HealthStatus{}
	}

	p, ok := e.store.(pinger)
	if !ok {
		return HealthStatus{StoreAvailable: true}
	}

	latency, err := p.Ping(ctx)
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   latency,
	}
}

// LoginAttempts returns the current failed-login count for an email
// identifier. Zero when throttling is disabled.
func (e *Engine) LoginAttempts(ctx context.Context, email string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if e.rateLimiter == nil || email == "" {
		return 0, nil
	}

	return e.rateLimiter.GetLoginAttempts(ctx, email)
}
