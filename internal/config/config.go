// Package config loads service configuration once at startup. Components
// receive the resolved Config struct; nothing reads the environment at
// call sites.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`

	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Providers ProvidersConfig `yaml:"providers"`
	Events    EventsConfig    `yaml:"events"`
}

type HTTPConfig struct {
	Addr            string `yaml:"addr"`
	RateLimit       int    `yaml:"rate_limit"`
	RateLimitWindow string `yaml:"rate_limit_window"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type TracingConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ExporterEndpoint string  `yaml:"exporter_endpoint"`
	ExporterProtocol string  `yaml:"exporter_protocol"`
	SamplingRatio    float64 `yaml:"sampling_ratio"`
}

// EventsConfig tunes the outbox drain loop.
type EventsConfig struct {
	DrainInterval string `yaml:"drain_interval"`
	BatchSize     int    `yaml:"batch_size"`
}

type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	PollInterval string `yaml:"poll_interval"`
	Concurrency  int    `yaml:"concurrency"`
	ClaimTTL     string `yaml:"claim_ttl"`
}

// ProvidersConfig carries base URLs and credentials for the upstream
// signal providers. Credentials are never logged unmasked.
type ProvidersConfig struct {
	PaymentsBaseURL  string `yaml:"payments_base_url"`
	PaymentsToken    string `yaml:"payments_token"`
	InvoicesBaseURL  string `yaml:"invoices_base_url"`
	InvoicesToken    string `yaml:"invoices_token"`
	WorkspaceBaseURL string `yaml:"workspace_base_url"`
	WorkspaceToken   string `yaml:"workspace_token"`
	Timeout          string `yaml:"timeout"`
}

var ErrMissingDSN = errors.New("missing_database_dsn")

// Load resolves configuration from an optional YAML file (SIGNALWAY_CONFIG)
// with environment variables taking precedence.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("SIGNALWAY_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return cfg, ErrMissingDSN
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ServiceName:    "signalway",
		ServiceVersion: "dev",
		Environment:    "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			RateLimit:       120,
			RateLimitWindow: "1m",
		},
		Tracing: TracingConfig{
			SamplingRatio: 0.1,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			PollInterval: "24h",
			Concurrency:  4,
			ClaimTTL:     "30m",
		},
		Providers: ProvidersConfig{
			Timeout: "10s",
		},
		Events: EventsConfig{
			DrainInterval: "30s",
			BatchSize:     100,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.ServiceName, "SIGNALWAY_SERVICE_NAME")
	setString(&cfg.ServiceVersion, "SIGNALWAY_SERVICE_VERSION")
	setString(&cfg.Environment, "SIGNALWAY_ENVIRONMENT")
	setString(&cfg.HTTP.Addr, "SIGNALWAY_HTTP_ADDR")
	setInt(&cfg.HTTP.RateLimit, "SIGNALWAY_HTTP_RATE_LIMIT")
	setString(&cfg.Database.DSN, "SIGNALWAY_DATABASE_DSN")
	setBool(&cfg.Tracing.Enabled, "SIGNALWAY_TRACING_ENABLED")
	setString(&cfg.Tracing.ExporterEndpoint, "SIGNALWAY_TRACING_ENDPOINT")
	setString(&cfg.Tracing.ExporterProtocol, "SIGNALWAY_TRACING_PROTOCOL")
	setBool(&cfg.Scheduler.Enabled, "SIGNALWAY_SCHEDULER_ENABLED")
	setString(&cfg.Scheduler.PollInterval, "SIGNALWAY_SCHEDULER_POLL_INTERVAL")
	setInt(&cfg.Scheduler.Concurrency, "SIGNALWAY_SCHEDULER_CONCURRENCY")
	setString(&cfg.Providers.PaymentsBaseURL, "SIGNALWAY_PAYMENTS_BASE_URL")
	setString(&cfg.Providers.PaymentsToken, "SIGNALWAY_PAYMENTS_TOKEN")
	setString(&cfg.Providers.InvoicesBaseURL, "SIGNALWAY_INVOICES_BASE_URL")
	setString(&cfg.Providers.InvoicesToken, "SIGNALWAY_INVOICES_TOKEN")
	setString(&cfg.Providers.WorkspaceBaseURL, "SIGNALWAY_WORKSPACE_BASE_URL")
	setString(&cfg.Providers.WorkspaceToken, "SIGNALWAY_WORKSPACE_TOKEN")
	setString(&cfg.Events.DrainInterval, "SIGNALWAY_EVENTS_DRAIN_INTERVAL")
	setInt(&cfg.Events.BatchSize, "SIGNALWAY_EVENTS_BATCH_SIZE")
}

func setString(target *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	}
}

func setInt(target *int, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func setBool(target *bool, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

// PollInterval parses the scheduler poll interval with a daily fallback.
func (c SchedulerConfig) PollIntervalOrDefault() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(c.PollInterval)); err == nil && d > 0 {
		return d
	}
	return 24 * time.Hour
}

// ClaimTTLOrDefault parses the pass claim TTL with a 30 minute fallback.
func (c SchedulerConfig) ClaimTTLOrDefault() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(c.ClaimTTL)); err == nil && d > 0 {
		return d
	}
	return 30 * time.Minute
}

// DrainIntervalOrDefault parses the outbox drain interval with a 30
// second fallback.
func (e EventsConfig) DrainIntervalOrDefault() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(e.DrainInterval)); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// BatchSizeOrDefault caps the drain batch between 1 and 500.
func (e EventsConfig) BatchSizeOrDefault() int {
	if e.BatchSize > 0 && e.BatchSize <= 500 {
		return e.BatchSize
	}
	return 100
}

// TimeoutOrDefault parses the provider call timeout with a 10 second fallback.
func (p ProvidersConfig) TimeoutOrDefault() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(p.Timeout)); err == nil && d > 0 {
		return d
	}
	return 10 * time.Second
}

// RateLimitWindowOrDefault parses the HTTP rate limit window with a one
// minute fallback.
func (h HTTPConfig) RateLimitWindowOrDefault() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(h.RateLimitWindow)); err == nil && d > 0 {
		return d
	}
	return time.Minute
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}
