package learnauth

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Configure it before
// [Builder.Build]; the engine treats it as immutable afterwards.
type Config struct {
	Token    TokenConfig
	Refresh  RefreshConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls the access-token codec. The signing key is injected
// here; there is no process-global key.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte // ed25519 only
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh-credential lifetime and store namespacing.
type RefreshConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

// PasswordConfig carries Argon2id parameters (memory in KB).
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig groups hardening switches and throttle budgets.
type SecurityConfig struct {
	// RevokeChainOnReuse revokes the remainder of a rotation chain when a
	// superseded refresh secret is presented again (theft signal).
	RevokeChainOnReuse bool
	// AutoRefreshOnResolve lets Resolve fall back from a failed access token
	// to refresh rotation in the same call.
	AutoRefreshOnResolve bool
	// CheckAccountOnResolve re-fetches the user record on every access-token
	// resolve to catch deleted accounts at the cost of a store round-trip.
	CheckAccountOnResolve bool

	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// DefaultConfig returns the configuration [New] starts from. Callers
// still have to supply Token.PrivateKey before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     30 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "learnauth",
			Leeway:        0,
		},
		Refresh: RefreshConfig{
			TTL:         30 * 24 * time.Hour,
			RedisPrefix: "la",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			RevokeChainOnReuse:      true,
			AutoRefreshOnResolve:    true,
			CheckAccountOnResolve:   false,
			EnableIPThrottle:        false,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internally consistent, safe values.
// Build calls it; exported so callers can pre-validate loaded config.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.SigningMethod != "hs256" && c.Token.SigningMethod != "ed25519" {
		return errors.New("unsupported token signing method")
	}
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("token signing requires PrivateKey")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be within [0, 2m]")
	}

	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.Token.AccessTTL {
		return errors.New("Refresh TTL must exceed Token AccessTTL")
	}
	if c.Refresh.RedisPrefix == "" {
		return errors.New("Refresh RedisPrefix must not be empty")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("Security MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("Security MaxRefreshAttempts must be > 0")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0")
		}
	}

	return nil
}
