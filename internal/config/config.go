// Package config loads sweep configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/montegrid/montegrid/pkg/retry"
)

// Pool configures the worker pool.
type Pool struct {
	Workers    int   `yaml:"workers"`
	MinWorkers int   `yaml:"min_workers"`
	MaxWorkers int   `yaml:"max_workers"`
	Seed       int64 `yaml:"seed"`
}

// Pricing configures the fixed Monte-Carlo parameters shared by all cells.
type Pricing struct {
	Spot  float64 `yaml:"spot"`
	Rate  float64 `yaml:"rate"`
	Days  int     `yaml:"days"`
	Paths int     `yaml:"paths"`
}

// Duration accepts "100ms" style YAML values, which yaml.v3 does not decode
// into a bare time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parsing duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds")
	}
	*d = Duration(n)
	return nil
}

// Retry configures the scheduler retry policy. Kind is "none", "fixed" or
// "exponential".
type Retry struct {
	Kind        string   `yaml:"kind"`
	MaxAttempts int      `yaml:"max_attempts"`
	Delay       Duration `yaml:"delay"`
}

// Sweep configures the grid axes and failure handling.
type Sweep struct {
	Strikes []float64 `yaml:"strikes"`
	Sigmas  []float64 `yaml:"sigmas"`
	Partial bool      `yaml:"partial"`
}

// Config is the full CLI configuration.
type Config struct {
	Pool     Pool    `yaml:"pool"`
	Pricing  Pricing `yaml:"pricing"`
	Retry    Retry   `yaml:"retry"`
	Sweep    Sweep   `yaml:"sweep"`
	LogLevel string  `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Pool: Pool{
			Workers:    4,
			MinWorkers: 1,
			MaxWorkers: 16,
			Seed:       1,
		},
		Pricing: Pricing{
			Spot:  100.0,
			Rate:  0.05,
			Days:  260,
			Paths: 10000,
		},
		Retry: Retry{Kind: "none"},
		Sweep: Sweep{
			Strikes: []float64{80, 90, 100, 110, 120},
			Sigmas:  []float64{0.1, 0.2, 0.3, 0.4},
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyEnv overrides individual fields from MONTEGRID_* variables.
func (c *Config) applyEnv() {
	if v, ok := envInt("MONTEGRID_WORKERS"); ok {
		c.Pool.Workers = v
	}
	if v, ok := envInt("MONTEGRID_MAX_WORKERS"); ok {
		c.Pool.MaxWorkers = v
	}
	if v, ok := envInt64("MONTEGRID_SEED"); ok {
		c.Pool.Seed = v
	}
	if v, ok := envInt("MONTEGRID_PATHS"); ok {
		c.Pricing.Paths = v
	}
	if v := os.Getenv("MONTEGRID_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MONTEGRID_PARTIAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Sweep.Partial = b
		}
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool.workers must be positive, got %d", c.Pool.Workers)
	}
	if c.Pool.MinWorkers > c.Pool.Workers || c.Pool.Workers > c.Pool.MaxWorkers {
		return fmt.Errorf("pool bounds must satisfy min <= workers <= max, got %d <= %d <= %d",
			c.Pool.MinWorkers, c.Pool.Workers, c.Pool.MaxWorkers)
	}
	if len(c.Sweep.Strikes) == 0 || len(c.Sweep.Sigmas) == 0 {
		return fmt.Errorf("sweep axes must be non-empty")
	}
	switch c.Retry.Kind {
	case "", "none":
	case "fixed", "exponential":
		if c.Retry.MaxAttempts < 2 {
			return fmt.Errorf("retry.max_attempts must be at least 2 for %q policy", c.Retry.Kind)
		}
	default:
		return fmt.Errorf("unknown retry kind %q", c.Retry.Kind)
	}
	return nil
}

// RetryPolicy builds the scheduler retry policy from the retry section.
func (c *Config) RetryPolicy() retry.Policy {
	switch c.Retry.Kind {
	case "fixed":
		return retry.NewFixedDelay(c.Retry.MaxAttempts, time.Duration(c.Retry.Delay))
	case "exponential":
		return retry.NewExponentialBackoff(c.Retry.MaxAttempts, time.Duration(c.Retry.Delay))
	default:
		return retry.None()
	}
}
