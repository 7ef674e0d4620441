package learnauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/learnhub-dev/learnauth/internal/rate"
)

// Register creates an account and logs it straight in, returning the
// new principal with its first credential pair. Duplicate emails fail
// with ErrEmailTaken.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(email) {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "invalid_email"}
		})
		return nil, ErrInvalidCredentials
	}
	if !req.Role.Valid() {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrRoleInvalid, nil)
		return nil, ErrRoleInvalid
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrPasswordPolicy, nil)
		return nil, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	user, err := e.userProvider.CreateUser(ctx, CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		Role:         req.Role,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrEmailTaken, nil)
			return nil, ErrEmailTaken
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", fmt.Errorf("%w: %v", ErrUnavailable, err), nil)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	pair, err := e.issueSession(ctx, user)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, user.UserID, err, func() map[string]string {
			return map[string]string{"reason": "session_issue_failed"}
		})
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.UserID, nil, nil)

	return &RegisterResult{
		Principal: Principal{
			UserID: user.UserID,
			Email:  user.Email,
			Role:   user.Role,
		},
		Pair: *pair,
	}, nil
}

// Login verifies the email/password pair and mints a credential pair.
// Unknown emails and wrong passwords are indistinguishable to the
// caller; both count against the login throttle.
func (e *Engine) Login(ctx context.Context, email, pass string) (*SessionPair, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || pass == "" {
		return nil, ErrInvalidCredentials
	}

	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, "", ErrLoginRateLimited, nil)
				return nil, ErrLoginRateLimited
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, e.failLogin(ctx, email, ip, "unknown_email")
	}

	ok, err := e.passwordHash.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, email, ip, "password_mismatch")
	}

	if e.rateLimiter != nil {
		// Counter reset failures are not worth failing a valid login over.
		_ = e.rateLimiter.ResetLogin(ctx, email, ip)
	}

	pair, err := e.issueSession(ctx, user)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, err, func() map[string]string {
			return map[string]string{"reason": "session_issue_failed"}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, nil, nil)

	return pair, nil
}

func (e *Engine) failLogin(ctx context.Context, email, ip, reason string) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, email, ip); errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", ErrLoginRateLimited, nil)
			return ErrLoginRateLimited
		}
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrInvalidCredentials
}

func validEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}
