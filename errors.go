package learnauth

import "errors"

var (
	// ErrUnauthenticated is returned when neither credential kind could be
	// used to resolve a principal.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned by Authorize for an authenticated principal
	// whose role does not satisfy the requirement.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials is returned by Login when the email/password pair
	// does not match an account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRefreshInvalid covers every terminal refresh failure: digest not
	// found, record revoked, or record expired. The cases are deliberately
	// collapsed so callers cannot probe token state; reuse incidents are
	// still distinguishable through audit events and metrics.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrUnavailable is returned when the backing store could not answer
	// within its normal transaction budget. Retryable.
	ErrUnavailable = errors.New("auth backend unavailable")
	// ErrPartialRevocation is returned by EndAllSessions when one or more
	// chains could not be confirmed revoked. Callers must not report success.
	ErrPartialRevocation = errors.New("partial session revocation")
	// ErrUserNotFound is returned when the account backing a credential no
	// longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by Register for a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrRoleInvalid is returned by Register for an unknown role name.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrLoginRateLimited is returned when the login attempt budget for an
	// identifier or IP is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when rotation attempts for a chain
	// exceed the configured budget.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrPasswordPolicy is returned when a password fails hashing policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrEngineNotReady indicates the Engine was not built through Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)
