package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/montegrid/montegrid/pkg/retry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, c.Pool.Workers)
	assert.Equal(t, 10000, c.Pricing.Paths)
	assert.Equal(t, "none", c.Retry.Kind)
	assert.NotEmpty(t, c.Sweep.Strikes)
	assert.NotEmpty(t, c.Sweep.Sigmas)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
pool:
  workers: 2
  min_workers: 1
  max_workers: 8
  seed: 99
pricing:
  spot: 50
  rate: 0.01
  days: 130
  paths: 500
retry:
  kind: fixed
  max_attempts: 3
  delay: 100ms
sweep:
  strikes: [95, 105]
  sigmas: [0.2]
  partial: true
log_level: debug
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Pool.Workers)
	assert.Equal(t, int64(99), c.Pool.Seed)
	assert.Equal(t, 50.0, c.Pricing.Spot)
	assert.Equal(t, 500, c.Pricing.Paths)
	assert.Equal(t, "fixed", c.Retry.Kind)
	assert.Equal(t, Duration(100*time.Millisecond), c.Retry.Delay)
	assert.Equal(t, []float64{95, 105}, c.Sweep.Strikes)
	assert.True(t, c.Sweep.Partial)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "pool: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MONTEGRID_WORKERS", "7")
	t.Setenv("MONTEGRID_MAX_WORKERS", "32")
	t.Setenv("MONTEGRID_SEED", "1234")
	t.Setenv("MONTEGRID_PATHS", "250")
	t.Setenv("MONTEGRID_LOG_LEVEL", "warn")
	t.Setenv("MONTEGRID_PARTIAL", "true")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7, c.Pool.Workers)
	assert.Equal(t, 32, c.Pool.MaxWorkers)
	assert.Equal(t, int64(1234), c.Pool.Seed)
	assert.Equal(t, 250, c.Pricing.Paths)
	assert.Equal(t, "warn", c.LogLevel)
	assert.True(t, c.Sweep.Partial)
}

func TestLoad_EnvIgnoresGarbage(t *testing.T) {
	t.Setenv("MONTEGRID_WORKERS", "many")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, c.Pool.Workers)
}

func TestDuration_Unmarshal(t *testing.T) {
	// integer values are nanoseconds
	path := writeConfig(t, "retry:\n  kind: fixed\n  max_attempts: 2\n  delay: 250\n")
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Duration(250), c.Retry.Delay)

	path = writeConfig(t, "retry:\n  delay: soon\n")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Pool.Workers = 0 },
			wantErr: "pool.workers",
		},
		{
			name:    "workers above max",
			mutate:  func(c *Config) { c.Pool.Workers = 99 },
			wantErr: "pool bounds",
		},
		{
			name:    "empty strikes",
			mutate:  func(c *Config) { c.Sweep.Strikes = nil },
			wantErr: "axes",
		},
		{
			name:    "unknown retry kind",
			mutate:  func(c *Config) { c.Retry.Kind = "bogus" },
			wantErr: "retry kind",
		},
		{
			name: "fixed retry without attempts",
			mutate: func(c *Config) {
				c.Retry.Kind = "fixed"
				c.Retry.MaxAttempts = 1
			},
			wantErr: "max_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	c := Default()
	assert.Equal(t, retry.None(), c.RetryPolicy())

	c.Retry = Retry{Kind: "fixed", MaxAttempts: 3, Delay: Duration(time.Second)}
	assert.Equal(t, 3, c.RetryPolicy().MaxAttempts())

	c.Retry = Retry{Kind: "exponential", MaxAttempts: 5, Delay: Duration(time.Second)}
	assert.Equal(t, 5, c.RetryPolicy().MaxAttempts())
}
