package learnauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/learnhub-dev/learnauth/codec"
	"github.com/learnhub-dev/learnauth/internal"
	"github.com/learnhub-dev/learnauth/refresh"
)

// ResolveResult is returned by [Engine.Resolve]. When the access token
// had expired and the refresh fallback ran, Rotated is true and Pair
// carries the replacement credentials the caller must deliver to the
// client.
type ResolveResult struct {
	Principal Principal
	Rotated   bool
	Pair      *SessionPair
}

// Resolve turns request credentials into a [Principal].
//
// A present access token is verified first; this is the hot path and
// costs one parse, no store round-trip. The refresh fallback runs when
// the access token is absent or expired; cookie clients routinely
// arrive with only a refresh token once the access cookie's max-age
// lapses. A token that is present but malformed or forged never
// reaches the fallback. When the fallback rotates the chain the new
// pair is returned alongside the principal. Every failure surfaces as
// ErrUnauthenticated.
func (e *Engine) Resolve(ctx context.Context, accessToken, refreshToken string) (*ResolveResult, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricResolveLatency, time.Since(start)) }()
	}

	fallbackEligible := accessToken == ""
	if accessToken != "" {
		claims, err := e.codec.Verify(accessToken)
		if err == nil {
			principal, perr := e.principalFromClaims(claims)
			if perr != nil {
				e.metricInc(MetricResolveFailure)
				return nil, ErrUnauthenticated
			}
			if e.config.Security.CheckAccountOnResolve {
				if _, uerr := e.userProvider.GetUserByID(ctx, principal.UserID); uerr != nil {
					e.metricInc(MetricResolveFailure)
					return nil, ErrUnauthenticated
				}
			}
			e.metricInc(MetricResolveSuccess)
			return &ResolveResult{Principal: *principal}, nil
		}
		fallbackEligible = errors.Is(err, codec.ErrExpired)
	}

	if fallbackEligible &&
		e.config.Security.AutoRefreshOnResolve &&
		refreshToken != "" {
		pair, principal, rerr := e.refreshInternal(ctx, refreshToken)
		if rerr != nil {
			e.metricInc(MetricResolveFailure)
			return nil, ErrUnauthenticated
		}

		e.metricInc(MetricResolveSuccess)
		e.metricInc(MetricResolveFallback)
		e.emitAudit(ctx, auditEventResolveFallback, true, principal.UserID, nil, nil)

		return &ResolveResult{
			Principal: *principal,
			Rotated:   true,
			Pair:      pair,
		}, nil
	}

	e.metricInc(MetricResolveFailure)
	return nil, ErrUnauthenticated
}

// Authorize passes when the principal's role satisfies the required
// role under the STUDENT < INSTRUCTOR < ADMIN ordering.
func (e *Engine) Authorize(principal *Principal, required Role) error {
	if principal == nil {
		return ErrUnauthenticated
	}
	if !principal.Role.Allows(required) {
		e.metricInc(MetricForbidden)
		return ErrForbidden
	}
	return nil
}

// EndSession revokes the refresh chain link for the presented secret.
// Revoking an unknown or already-revoked secret succeeds; logout is
// idempotent.
func (e *Engine) EndSession(ctx context.Context, refreshToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil
	}

	digest := internal.DigestSecret(refreshToken)
	if err := e.store.Revoke(ctx, digest); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", nil, nil)
	return nil
}

// EndAllSessions revokes every live refresh chain for the user and
// returns how many records were revoked. When some chains could not
// be confirmed revoked the count is returned with ErrPartialRevocation
// and the caller must not report a clean logout.
func (e *Engine) EndAllSessions(ctx context.Context, userID string) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}

	revoked, err := e.store.RevokeAllForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, refresh.ErrPartialRevocation) {
			e.metricInc(MetricLogoutAllPartial)
			e.emitAudit(ctx, auditEventLogoutAll, false, userID, ErrPartialRevocation, func() map[string]string {
				return map[string]string{"revoked": fmt.Sprintf("%d", revoked)}
			})
			return revoked, fmt.Errorf("%w: %v", ErrPartialRevocation, err)
		}
		return revoked, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprintf("%d", revoked)}
	})
	return revoked, nil
}
