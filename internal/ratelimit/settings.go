package ratelimit

import (
	internalsettings "github.com/ideaspark/ideaspark/internal/settings"
)

// SettingsConfig captures rate limit settings stored in DB config.
type SettingsConfig struct {
	Limit         int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// ConfigFromStore builds the current rate limit settings snapshot.
func ConfigFromStore(store *internalsettings.Store) SettingsConfig {
	cfg := SettingsConfig{
		Limit:       internalsettings.DefaultRateLimit,
		RedisPrefix: internalsettings.DefaultRateLimitRedisPrefix,
	}
	if store == nil {
		return cfg
	}
	cfg.Limit = store.Int(internalsettings.RateLimitKey, internalsettings.DefaultRateLimit)
	cfg.RedisEnabled = store.Bool(internalsettings.RateLimitRedisEnabledKey, false)
	cfg.RedisAddr = store.String(internalsettings.RateLimitRedisAddrKey, "")
	cfg.RedisPassword = store.String(internalsettings.RateLimitRedisPasswordKey, "")
	cfg.RedisDB = store.Int(internalsettings.RateLimitRedisDBKey, 0)
	cfg.RedisPrefix = store.String(internalsettings.RateLimitRedisPrefixKey, internalsettings.DefaultRateLimitRedisPrefix)
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	if cfg.Limit < 0 {
		cfg.Limit = 0
	}
	if cfg.RedisDB < 0 {
		cfg.RedisDB = 0
	}
	return cfg
}
