package learnauth

import "time"

// SecurityReport is a point-in-time summary of the engine's effective
// security posture, for startup logs and ops dashboards. It carries
// configuration facts only, never key material.
type SecurityReport struct {
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	Argon2                PasswordConfigReport
	ChainRevokeOnReuse    bool
	AutoRefreshOnResolve  bool
	CheckAccountOnResolve bool
	LoginThrottleActive   bool
	IPThrottleActive      bool
	RefreshThrottleActive bool
	AuditActive           bool
	MetricsActive         bool
}

// PasswordConfigReport mirrors the active argon2id parameters.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport summarizes the engine's active hardening switches.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	loginThrottle := e.rateLimiter != nil &&
		e.config.Security.MaxLoginAttempts > 0 &&
		e.config.Security.LoginCooldownDuration > 0

	return SecurityReport{
		SigningAlgorithm: e.config.Token.SigningMethod,
		AccessTTL:        e.config.Token.AccessTTL,
		RefreshTTL:       e.config.Refresh.TTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		ChainRevokeOnReuse:    e.config.Security.RevokeChainOnReuse,
		AutoRefreshOnResolve:  e.config.Security.AutoRefreshOnResolve,
		CheckAccountOnResolve: e.config.Security.CheckAccountOnResolve,
		LoginThrottleActive:   loginThrottle,
		IPThrottleActive:      loginThrottle && e.config.Security.EnableIPThrottle,
		RefreshThrottleActive: e.rateLimiter != nil && e.config.Security.EnableRefreshThrottle,
		AuditActive:           e.audit != nil,
		MetricsActive:         e.metrics != nil && e.metrics.Enabled(),
	}
}
