package learnauth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/learnhub-dev/learnauth/codec"
	"github.com/learnhub-dev/learnauth/internal/rate"
	"github.com/learnhub-dev/learnauth/password"
	"github.com/learnhub-dev/learnauth/refresh"
)

// Builder assembles an [Engine]. A Builder is single-use: Build
// consumes it.
//
//	engine, err := learnauth.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithUserProvider(provider).
//		Build()
type Builder struct {
	config Config
	redis  *redis.Client
	store  refresh.Store

	userProvider UserProvider
	auditSink    AuditSink

	built bool
}

// New returns a Builder preloaded with defaults: HS256 tokens with a
// 30-minute TTL, 30-day refresh chains, argon2id passwords.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is cloned;
// later mutation of cfg does not affect the engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing the default refresh
// store and the rate limiter.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithRefreshStore overrides the refresh store, e.g. with a
// [refresh.PostgresStore]. A Redis client is still needed for
// throttling unless throttles are disabled.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.store = store
	return b
}

// WithUserProvider supplies the account lookup/creation backend.
// Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink enables audit dispatch to the given sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the resolve latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the stores, and returns a
// ready [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or refresh store required")
		}
		store = refresh.NewRedisStore(b.redis, cfg.Refresh.RedisPrefix)
	}

	throttling := cfg.Security.MaxLoginAttempts > 0 || cfg.Security.EnableRefreshThrottle
	var limiter *rate.Limiter
	if throttling {
		if b.redis == nil {
			return nil, errors.New("throttling requires redis client")
		}
		limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:        cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		})
	}

	tokenCodec, err := codec.New(codec.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: codec.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	b.built = true

	return &Engine{
		config:       cfg,
		codec:        tokenCodec,
		store:        store,
		rateLimiter:  limiter,
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:      NewMetrics(cfg.Metrics),
		passwordHash: hasher,
		userProvider: b.userProvider,
	}, nil
}
