package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	WindowSlidingExpiry = "sliding_expiry"
	WindowFixed         = "fixed_window"

	CatchAllPattern = "*"
)

var ErrPolicyNotFound = errors.New("no catch-all endpoint policy configured")

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Features  FeaturesConfig  `mapstructure:"features"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret      string `mapstructure:"jwt_secret"`
	JWTExpiryHours int    `mapstructure:"jwt_expiry_hours"`
}

type RateLimitConfig struct {
	WindowMode         string           `mapstructure:"window_mode"`
	StoreTimeoutMs     int              `mapstructure:"store_timeout_ms"`
	AnonymousPerMinute int              `mapstructure:"anonymous_per_minute"`
	BreakerMaxFailures int              `mapstructure:"breaker_max_failures"`
	BreakerCooldownSec int              `mapstructure:"breaker_cooldown_sec"`
	Plans              map[string]Plan  `mapstructure:"plans"`
	Endpoints          []EndpointPolicy `mapstructure:"endpoints"`
}

func (r RateLimitConfig) StoreTimeout() time.Duration {
	return time.Duration(r.StoreTimeoutMs) * time.Millisecond
}

func (r RateLimitConfig) BreakerCooldown() time.Duration {
	return time.Duration(r.BreakerCooldownSec) * time.Second
}

// Overrides of the compiled-in plan quotas, keyed by plan name
type Plan struct {
	RequestsPerMinute     int `mapstructure:"requests_per_minute"`
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests"`
}

type EndpointPolicy struct {
	Pattern      string  `mapstructure:"pattern"`
	Multiplier   float64 `mapstructure:"multiplier"`
	DecayMinutes int     `mapstructure:"decay_minutes"`
}

type FeaturesConfig struct {
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
	// Runtime environment used by environment gated flags. Defaults to server.environment.
	Environment string `mapstructure:"environment"`
}

func (f FeaturesConfig) CacheTTL() time.Duration {
	return time.Duration(f.CacheTTLMinutes) * time.Minute
}

// Default returns the compiled-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Environment: "development",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		Auth: AuthConfig{
			JWTExpiryHours: 24,
		},
		RateLimit: RateLimitConfig{
			WindowMode:         WindowSlidingExpiry,
			StoreTimeoutMs:     50,
			AnonymousPerMinute: 15,
			BreakerMaxFailures: 5,
			BreakerCooldownSec: 10,
			Endpoints: []EndpointPolicy{
				{Pattern: "api/auth/otp/*", Multiplier: 0.2, DecayMinutes: 5},
				{Pattern: "api/auth/magic-link/*", Multiplier: 0.2, DecayMinutes: 5},
				{Pattern: "api/auth/login", Multiplier: 0.1, DecayMinutes: 1},
				{Pattern: "api/auth/impersonate/*", Multiplier: 0.1, DecayMinutes: 10},
				{Pattern: "api/exports/*", Multiplier: 0.05, DecayMinutes: 60},
				{Pattern: "api/search*", Multiplier: 0.5, DecayMinutes: 1},
				{Pattern: CatchAllPattern, Multiplier: 1.0, DecayMinutes: 1},
			},
		},
		Features: FeaturesConfig{
			CacheTTLMinutes: 30,
		},
	}
}

// Load reads path (JSON) on top of Default, then applies GATEWAY_* environment overrides.
// A missing file is not an error; the defaults and environment are used instead.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.environment", d.Server.Environment)
	v.SetDefault("server.debug", d.Server.Debug)
	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.jwt_expiry_hours", d.Auth.JWTExpiryHours)
	v.SetDefault("rate_limit.window_mode", d.RateLimit.WindowMode)
	v.SetDefault("rate_limit.store_timeout_ms", d.RateLimit.StoreTimeoutMs)
	v.SetDefault("rate_limit.anonymous_per_minute", d.RateLimit.AnonymousPerMinute)
	v.SetDefault("rate_limit.breaker_max_failures", d.RateLimit.BreakerMaxFailures)
	v.SetDefault("rate_limit.breaker_cooldown_sec", d.RateLimit.BreakerCooldownSec)
	v.SetDefault("features.cache_ttl_minutes", d.Features.CacheTTLMinutes)
	v.SetDefault("features.environment", d.Features.Environment)

	endpoints := make([]map[string]interface{}, 0, len(d.RateLimit.Endpoints))
	for _, e := range d.RateLimit.Endpoints {
		endpoints = append(endpoints, map[string]interface{}{
			"pattern":       e.Pattern,
			"multiplier":    e.Multiplier,
			"decay_minutes": e.DecayMinutes,
		})
	}
	v.SetDefault("rate_limit.endpoints", endpoints)
}

// Validate rejects configurations that would fail at request time
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}

	switch c.RateLimit.WindowMode {
	case WindowSlidingExpiry, WindowFixed:
	default:
		return fmt.Errorf("unknown rate_limit.window_mode %q", c.RateLimit.WindowMode)
	}

	if c.RateLimit.AnonymousPerMinute <= 0 {
		return errors.New("rate_limit.anonymous_per_minute must be positive")
	}

	hasCatchAll := false
	for _, e := range c.RateLimit.Endpoints {
		if e.Pattern == "" {
			return errors.New("rate_limit.endpoints: empty pattern")
		}
		if e.Multiplier <= 0 {
			return fmt.Errorf("rate_limit.endpoints[%s]: multiplier must be positive", e.Pattern)
		}
		if e.DecayMinutes <= 0 {
			return fmt.Errorf("rate_limit.endpoints[%s]: decay_minutes must be positive", e.Pattern)
		}
		if e.Pattern == CatchAllPattern {
			hasCatchAll = true
		}
	}
	if !hasCatchAll {
		return ErrPolicyNotFound
	}

	return nil
}

// Environment used for environment gated feature flags
func (c *Config) FeatureEnvironment() string {
	if c.Features.Environment != "" {
		return c.Features.Environment
	}
	return c.Server.Environment
}
