package learnauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/learnhub-dev/learnauth/internal"
	"github.com/learnhub-dev/learnauth/internal/rate"
	"github.com/learnhub-dev/learnauth/refresh"
)

// Refresh redeems a refresh secret for a fresh credential pair. The
// presented secret is atomically superseded: a second redemption of
// the same secret fails and, with RevokeChainOnReuse set, takes the
// whole chain down with it.
//
// Every terminal failure is reported as ErrRefreshInvalid so callers
// cannot distinguish unknown, expired, and stolen tokens.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*SessionPair, error) {
	pair, _, err := e.refreshInternal(ctx, refreshToken)
	return pair, err
}

func (e *Engine) refreshInternal(ctx context.Context, refreshToken string) (*SessionPair, *Principal, error) {
	if e == nil || e.store == nil {
		return nil, nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, nil, ErrRefreshInvalid
	}

	digest := internal.DigestSecret(refreshToken)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, digest); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricRefreshRateLimited)
				e.emitAudit(ctx, auditEventRefreshRateLimited, false, "", ErrRefreshRateLimited, nil)
				return nil, nil, ErrRefreshRateLimited
			}
			return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, nil, fmt.Errorf("generate refresh secret: %w", err)
	}

	now := time.Now()
	next := &refresh.Record{
		ID:        uuid.NewString(),
		Digest:    internal.DigestSecret(nextSecret),
		ExpiresAt: now.Add(e.config.Refresh.TTL),
		CreatedAt: now,
		UpdatedAt: now,
	}

	userID, err := e.store.Rotate(ctx, digest, next)
	if err != nil {
		return nil, nil, e.classifyRotateFailure(ctx, digest, userID, err)
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		// The account vanished between rotation and lookup. Kill the
		// chain so the orphaned secret cannot circulate.
		_, _ = e.store.RevokeChain(ctx, next.Digest)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, ErrUserNotFound, func() map[string]string {
			return map[string]string{"reason": "account_missing"}
		})
		return nil, nil, ErrRefreshInvalid
	}

	access, err := e.codec.Issue(user.UserID, user.Email, user.Role.String())
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.UserID, err, func() map[string]string {
			return map[string]string{"reason": "issue_access_failed"}
		})
		return nil, nil, fmt.Errorf("issue access token: %w", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.UserID, nil, nil)

	pair := &SessionPair{
		AccessToken:  access,
		RefreshToken: nextSecret,
	}
	principal := &Principal{
		UserID: user.UserID,
		Email:  user.Email,
		Role:   user.Role,
	}
	return pair, principal, nil
}

func (e *Engine) classifyRotateFailure(ctx context.Context, digest, userID string, err error) error {
	switch {
	case errors.Is(err, refresh.ErrReuse):
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, userID, refresh.ErrReuse, nil)
		if e.config.Security.RevokeChainOnReuse {
			e.revokeChainOnReuse(ctx, digest, userID)
		}
		return ErrRefreshInvalid
	case errors.Is(err, refresh.ErrNotFound), errors.Is(err, refresh.ErrExpired):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{"reason": rotateFailureReason(err)}
		})
		return ErrRefreshInvalid
	default:
		e.metricInc(MetricRefreshFailure)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (e *Engine) revokeChainOnReuse(ctx context.Context, digest, userID string) {
	revoked, err := e.store.RevokeChain(ctx, digest)
	if err != nil {
		e.emitAudit(ctx, auditEventChainRevoked, false, userID, fmt.Errorf("%w: %v", ErrUnavailable, err), nil)
		return
	}
	if revoked > 0 {
		e.metricInc(MetricChainRevoked)
	}
	e.emitAudit(ctx, auditEventChainRevoked, true, userID, nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprintf("%d", revoked)}
	})
}

func rotateFailureReason(err error) string {
	if errors.Is(err, refresh.ErrExpired) {
		return "expired"
	}
	return "not_found"
}
