package learnauth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/learnhub-dev/learnauth/codec"
	"github.com/learnhub-dev/learnauth/internal"
	"github.com/learnhub-dev/learnauth/internal/rate"
	"github.com/learnhub-dev/learnauth/password"
	"github.com/learnhub-dev/learnauth/refresh"
)

// Engine is the top-level entry point. Build one through [Builder],
// share it across goroutines, and Close it on shutdown to flush audit
// events. All state lives in the injected stores; the Engine itself is
// immutable after Build.
type Engine struct {
	config       Config
	codec        *codec.Codec
	store        refresh.Store
	rateLimiter  *rate.Limiter
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	userProvider UserProvider
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped due to a
// full buffer since the engine started.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// IssueSession mints a fresh credential pair for an existing account,
// bypassing password verification. Intended for flows where identity
// was established elsewhere (federated login, admin impersonation).
func (e *Engine) IssueSession(ctx context.Context, userID string) (*SessionPair, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	pair, err := e.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventSessionIssued, true, user.UserID, nil, nil)
	return pair, nil
}

// ActiveSessionCount returns the number of live refresh chains for a user.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}

	count, err := e.store.ActiveCountForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

// issueSession mints the access token, generates a fresh refresh
// secret, and persists only the secret's digest.
func (e *Engine) issueSession(ctx context.Context, user UserRecord) (*SessionPair, error) {
	if !user.Role.Valid() {
		return nil, ErrRoleInvalid
	}

	access, err := e.codec.Issue(user.UserID, user.Email, user.Role.String())
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("generate refresh secret: %w", err)
	}

	now := time.Now()
	rec := &refresh.Record{
		ID:        uuid.NewString(),
		UserID:    user.UserID,
		Digest:    internal.DigestSecret(secret),
		ExpiresAt: now.Add(e.config.Refresh.TTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metricInc(MetricSessionIssued)

	return &SessionPair{
		AccessToken:  access,
		RefreshToken: secret,
	}, nil
}

func (e *Engine) principalFromClaims(claims *codec.Claims) (*Principal, error) {
	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return &Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}, nil
}
