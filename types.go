package learnauth

import "context"

// Principal is the resolved, request-scoped identity used for authorization
// decisions. It is derived per request and never persisted.
type Principal struct {
	UserID string
	Email  string
	Role   Role
}

// SessionPair carries one freshly issued credential pair. AccessToken is a
// signed, self-contained claim set; RefreshToken is the raw opaque secret and
// is handed to the caller exactly once — only its digest is stored.
type SessionPair struct {
	AccessToken  string
	RefreshToken string
}

// UserRecord is the account record returned by [UserProvider]. PasswordHash
// is the stored one-way digest; the engine never sees plaintext passwords
// outside Login/Register arguments.
type UserRecord struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         Role
}

// CreateUserInput is the input for [UserProvider.CreateUser].
type CreateUserInput struct {
	Email        string
	PasswordHash string
	Role         Role
}

// UserProvider is the interface callers implement to integrate learnauth
// with their user database. It is a pure account lookup/creation contract;
// all credential state lives in the refresh store.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
}

// RegisterRequest is the input for [Engine.Register]. Role defaults to
// RoleStudent when left at the zero value, matching platform signup.
type RegisterRequest struct {
	Email    string
	Password string
	Role     Role
}

// RegisterResult is returned by [Engine.Register]. The pair is non-nil
// because registration logs the new account in immediately.
type RegisterResult struct {
	Principal Principal
	Pair      SessionPair
}
