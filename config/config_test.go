package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Equal(t, "data/security_policies.json", cfg.Policy.ConfigPath)
	assert.Equal(t, "data/audit.log", cfg.Audit.LogPath)
	assert.Equal(t, 10000, cfg.Audit.MemoryCap)
	assert.Equal(t, 10, cfg.Approval.MaxRiskOperations)
	assert.Equal(t, 5*time.Second, cfg.Watchdog.Interval)
	assert.InDelta(t, 90, cfg.Watchdog.MemoryThreshold, 0.01)
	assert.Equal(t, 30*time.Second, cfg.Sentinel.MaxFileAge)
	assert.NotEmpty(t, cfg.Sentinel.Directories)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("WATCHDOG_INTERVAL", "2s")
	t.Setenv("WATCHDOG_MEMORY_THRESHOLD", "85")
	t.Setenv("SENTINEL_DIRECTORIES", "/tmp/dl1, /tmp/dl2")
	t.Setenv("APPROVAL_MAX_RISK_OPERATIONS", "3")
	t.Setenv("RISK_LARGE_FILE_THRESHOLD", "1024")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Watchdog.Interval)
	assert.InDelta(t, 85, cfg.Watchdog.MemoryThreshold, 0.01)
	assert.Equal(t, []string{"/tmp/dl1", "/tmp/dl2"}, cfg.Sentinel.Directories)
	assert.Equal(t, 3, cfg.Approval.MaxRiskOperations)
	assert.Equal(t, int64(1024), cfg.Risk.LargeFileThreshold)
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("WATCHDOG_INTERVAL", "soon")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Watchdog.Interval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "missing policy path",
			mutate:  func(c *Config) { c.Policy.ConfigPath = "" },
			wantErr: "policy config path",
		},
		{
			name:    "missing audit path",
			mutate:  func(c *Config) { c.Audit.LogPath = "" },
			wantErr: "audit log path",
		},
		{
			name:    "memory threshold out of range",
			mutate:  func(c *Config) { c.Watchdog.MemoryThreshold = 150 },
			wantErr: "memory threshold",
		},
		{
			name: "jwt secret required in production",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.Auth.Secret = ""
			},
			wantErr: "JWT secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := New()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
