package learnauth

import (
	"context"
	"errors"
	"time"

	"github.com/learnhub-dev/learnauth/refresh"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterFailure      = "register_failure"
	auditEventRegisterDuplicate    = "register_duplicate"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshRateLimited   = "refresh_rate_limited"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventChainRevoked         = "refresh_chain_revoked"
	auditEventResolveFallback      = "resolve_refresh_fallback"
	auditEventSessionIssued        = "session_issued"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
)

// AuditErrorCode is the stable error vocabulary used in audit events.
type AuditErrorCode string

const (
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRefreshInvalid     AuditErrorCode = "refresh_invalid"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrRoleInvalid        AuditErrorCode = "role_invalid"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPartialRevocation  AuditErrorCode = "partial_revocation"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, refresh.ErrReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrEmailTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrRoleInvalid):
		return auditErrRoleInvalid
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPartialRevocation):
		return auditErrPartialRevocation
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
