package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Engine.AgentCallTimeout)
	assert.True(t, cfg.Engine.RequireFullQuorum)
	assert.Equal(t, 5, cfg.Scheduler.AttemptsPerWindow)
	assert.Equal(t, time.Minute, cfg.Scheduler.RateWindow)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 120*time.Second, cfg.Scheduler.RetryDelay)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accord.yaml")
	content := `
server:
  http_port: 9090
engine:
  agent_call_timeout: 10s
  require_full_quorum: false
scheduler:
  max_attempts: 5
  retry_delay: 30s
database:
  driver: memory
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.Engine.AgentCallTimeout)
	assert.False(t, cfg.Engine.RequireFullQuorum)
	assert.Equal(t, 5, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.RetryDelay)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Sections the file does not mention keep their defaults.
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accord.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9090\n"), 0o600))

	t.Setenv("ACCORD_SERVER_HTTP_PORT", "7070")
	t.Setenv("ACCORD_ENGINE_AGENT_CALL_TIMEOUT", "5s")
	t.Setenv("ACCORD_ENGINE_REQUIRE_FULL_QUORUM", "false")
	t.Setenv("ACCORD_DATABASE_DRIVER", "redis")
	t.Setenv("ACCORD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ACCORD_TELEMETRY_SAMPLE_RATE", "0.25")
	t.Setenv("ACCORD_LOG_OUTPUT_PATHS", "stdout, /var/log/accord.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort, "env wins over the file")
	assert.Equal(t, 5*time.Second, cfg.Engine.AgentCallTimeout)
	assert.False(t, cfg.Engine.RequireFullQuorum)
	assert.Equal(t, "redis", cfg.Database.Driver)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
	assert.Equal(t, []string{"stdout", "/var/log/accord.log"}, cfg.Log.OutputPaths)
}

func TestLoadCustomEnvPrefix(t *testing.T) {
	t.Setenv("CUSTOM_SERVER_HTTP_PORT", "6060")
	cfg, err := NewLoader().WithEnvPrefix("CUSTOM").Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.HTTPPort)
}

func TestLoadRejectsMalformedEnvValue(t *testing.T) {
	t.Setenv("ACCORD_SERVER_HTTP_PORT", "not-a-number")
	_, err := NewLoader().Load()
	require.Error(t, err)
}

func TestLoadRunsValidators(t *testing.T) {
	boom := errors.New("validator rejected")
	_, err := NewLoader().WithValidator(func(*Config) error { return boom }).Load()
	require.ErrorIs(t, err, boom)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }, "invalid HTTP port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "unknown database driver"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "requires database.path"},
		{"zero max attempts", func(c *Config) { c.Scheduler.MaxAttempts = 0 }, "max_attempts must be positive"},
		{"zero rate window budget", func(c *Config) { c.Scheduler.AttemptsPerWindow = 0 }, "attempts_per_window must be positive"},
		{"sample rate out of range", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "sample_rate must be between 0 and 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Driver: "sqlite", Path: "/var/lib/accord/accord.db"}
	assert.Equal(t, "/var/lib/accord/accord.db", d.DSN())

	d.Driver = "memory"
	assert.Empty(t, d.DSN())
}
