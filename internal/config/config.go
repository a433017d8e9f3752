// Package config loads the feedbacker configuration from a file and
// FEEDBACKER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application. It is passed
// explicitly to the scheduler and server; there is no ambient global state.
type Config struct {
	// Environment name/mode ("development", "production").
	Environment string

	// Verbose enables debug logging.
	Verbose bool

	// HTTPPort is the bind port for the API and health endpoints.
	HTTPPort int

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// WorkDir is the parent directory for per-job working copies.
	WorkDir string

	// SSHKeyPath points to the private key used for git-over-SSH fetches.
	SSHKeyPath string

	// Workers is the fixed size of the scheduler's worker pool.
	Workers int

	// QueueCapacity bounds the number of queued jobs before submissions
	// are rejected as overloaded.
	QueueCapacity int

	// FetchTimeout bounds one clone/checkout attempt.
	FetchTimeout time.Duration

	// AnalysisTimeout bounds one analysis run, independent of FetchTimeout.
	AnalysisTimeout time.Duration

	// MaxAttempts limits fetch retries per job.
	MaxAttempts int

	// RetryBaseBackoff is the delay before the first retry; it doubles per
	// attempt up to RetryMaxBackoff.
	RetryBaseBackoff time.Duration
	RetryMaxBackoff  time.Duration

	// StoreAttempts bounds retries of the result write.
	StoreAttempts int

	// Runtime selects the analysis command backend: "exec" or "docker".
	Runtime string

	// CheckCommand is the external check run by the command analysis step.
	CheckCommand []string

	// CheckImage is the container image used when Runtime is "docker".
	CheckImage string

	// DefaultAnalyses is the analysis set applied when a submission names none.
	DefaultAnalyses []string

	// RateLimit is the per-client request rate for submission endpoints,
	// in requests per second. 0 disables limiting.
	RateLimit      float64
	RateLimitBurst int

	// OTELEndpoint is the OTLP gRPC collector address ("" disables tracing).
	OTELEndpoint string
}

// Load reads configuration from an optional YAML file plus environment
// variables. Environment variables win.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("verbose", false)
	v.SetDefault("http_port", 8080)
	v.SetDefault("work_dir", "/var/lib/feedbacker/work")
	v.SetDefault("ssh_key_path", "/etc/feedbacker/id_ed25519")
	v.SetDefault("workers", 4)
	v.SetDefault("queue_capacity", 64)
	v.SetDefault("fetch_timeout", "2m")
	v.SetDefault("analysis_timeout", "10m")
	v.SetDefault("max_attempts", 3)
	v.SetDefault("retry_base_backoff", "5s")
	v.SetDefault("retry_max_backoff", "2m")
	v.SetDefault("store_attempts", 3)
	v.SetDefault("runtime", "exec")
	v.SetDefault("check_command", []string{})
	v.SetDefault("check_image", "")
	v.SetDefault("default_analyses", []string{"secrets"})
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("otel_endpoint", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("feedbacker")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/feedbacker")
	}

	v.SetEnvPrefix("FEEDBACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Environment:      v.GetString("environment"),
		Verbose:          v.GetBool("verbose"),
		HTTPPort:         v.GetInt("http_port"),
		DatabaseURL:      v.GetString("database_url"),
		WorkDir:          v.GetString("work_dir"),
		SSHKeyPath:       v.GetString("ssh_key_path"),
		Workers:          v.GetInt("workers"),
		QueueCapacity:    v.GetInt("queue_capacity"),
		FetchTimeout:     v.GetDuration("fetch_timeout"),
		AnalysisTimeout:  v.GetDuration("analysis_timeout"),
		MaxAttempts:      v.GetInt("max_attempts"),
		RetryBaseBackoff: v.GetDuration("retry_base_backoff"),
		RetryMaxBackoff:  v.GetDuration("retry_max_backoff"),
		StoreAttempts:    v.GetInt("store_attempts"),
		Runtime:          v.GetString("runtime"),
		CheckCommand:     v.GetStringSlice("check_command"),
		CheckImage:       v.GetString("check_image"),
		DefaultAnalyses:  v.GetStringSlice("default_analyses"),
		RateLimit:        v.GetFloat64("rate_limit"),
		RateLimitBurst:   v.GetInt("rate_limit_burst"),
		OTELEndpoint:     v.GetString("otel_endpoint"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (FEEDBACKER_DATABASE_URL)")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.Runtime != "exec" && c.Runtime != "docker" {
		return fmt.Errorf("runtime must be exec or docker, got %q", c.Runtime)
	}
	return nil
}
