package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, WindowSlidingExpiry, cfg.RateLimit.WindowMode)
	assert.Equal(t, 15, cfg.RateLimit.AnonymousPerMinute)
	assert.Equal(t, 30, cfg.Features.CacheTTLMinutes)
	require.NotEmpty(t, cfg.RateLimit.Endpoints)
	assert.Equal(t, CatchAllPattern, cfg.RateLimit.Endpoints[len(cfg.RateLimit.Endpoints)-1].Pattern)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": "9090", "environment": "staging"},
		"rate_limit": {
			"window_mode": "fixed_window",
			"plans": {"basic": {"requests_per_minute": 120, "max_concurrent_requests": 4}},
			"endpoints": [
				{"pattern": "api/auth/otp/*", "multiplier": 0.2, "decay_minutes": 5},
				{"pattern": "*", "multiplier": 1.0, "decay_minutes": 1}
			]
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "staging", cfg.FeatureEnvironment())
	assert.Equal(t, WindowFixed, cfg.RateLimit.WindowMode)
	assert.Len(t, cfg.RateLimit.Endpoints, 2)
	assert.Equal(t, 0.2, cfg.RateLimit.Endpoints[0].Multiplier)
	assert.Equal(t, 120, cfg.RateLimit.Plans["basic"].RequestsPerMinute)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("GATEWAY_SERVER_PORT", "7070")
	t.Setenv("GATEWAY_FEATURES_ENVIRONMENT", "canary")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "canary", cfg.FeatureEnvironment())
}

func TestLoad_RejectsMissingCatchAll(t *testing.T) {
	path := writeConfig(t, `{
		"rate_limit": {
			"endpoints": [{"pattern": "api/*", "multiplier": 1.0, "decay_minutes": 1}]
		}
	}`)

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "unknown window mode",
			mutate:  func(c *Config) { c.RateLimit.WindowMode = "leaky" },
			wantErr: true,
		},
		{
			name: "zero multiplier",
			mutate: func(c *Config) {
				c.RateLimit.Endpoints[0].Multiplier = 0
			},
			wantErr: true,
		},
		{
			name: "zero decay",
			mutate: func(c *Config) {
				c.RateLimit.Endpoints[0].DecayMinutes = 0
			},
			wantErr: true,
		},
		{
			name:    "no anonymous budget",
			mutate:  func(c *Config) { c.RateLimit.AnonymousPerMinute = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
