package config

import (
	"time"

	redisclient "github.com/snapflow/capshot/internal/infra/redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig            `yaml:"server"`
	Logging   LoggingConfig           `yaml:"logging"`
	Redis     redisclient.Config      `yaml:"redis"`
	Policies  map[string]PolicyConfig `yaml:"retry_policies"`
	Breaker   BreakerConfig           `yaml:"circuit_breaker"`
	RateLimit RateLimitConfig         `yaml:"rate_limit"`
	Targets   []TargetConfig          `yaml:"targets"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PolicyConfig holds one named retry policy. Durations are strings in
// time.ParseDuration format ("500ms", "10s").
type PolicyConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	InitialDelay    string  `yaml:"initial_delay"`
	MaxDelay        string  `yaml:"max_delay"`
	BackoffMultiple float64 `yaml:"backoff_multiple"`
}

// BreakerConfig holds circuit breaker tunings.
type BreakerConfig struct {
	FailureThreshold int    `yaml:"failure_threshold"`
	ResetTimeout     string `yaml:"reset_timeout"`
	MonitoringPeriod string `yaml:"monitoring_period"`
}

// RateLimitConfig holds sliding-window rate limiter tunings.
type RateLimitConfig struct {
	RequestsPerWindow int    `yaml:"requests_per_window"`
	Window            string `yaml:"window"`
}

// TargetConfig describes one capture target the probe exercises.
type TargetConfig struct {
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	Policy        string `yaml:"policy"`         // named retry policy; defaults to "network"
	Interval      string `yaml:"interval"`       // probe cadence; defaults to 30s
	DeviceProfile string `yaml:"device_profile"` // forwarded into failure reports
}

// Defaults applied by Load when fields are absent.
const (
	DefaultPort           = 8080
	DefaultTargetInterval = 30 * time.Second
)
