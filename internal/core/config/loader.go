package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/snapflow/capshot/internal/resilience/breaker"
	"github.com/snapflow/capshot/internal/resilience/retry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}

	for i := range cfg.Targets {
		if cfg.Targets[i].Policy == "" {
			cfg.Targets[i].Policy = retry.PolicyNetwork
		}
		if cfg.Targets[i].Interval == "" {
			cfg.Targets[i].Interval = DefaultTargetInterval.String()
		}
	}

	return &cfg, nil
}

// RetryPolicies merges configured policy overrides over the built-in
// presets. Unknown preset names are allowed; they become new named
// policies.
func (c *AppConfig) RetryPolicies() (map[string]retry.Policy, error) {
	policies := retry.DefaultPolicies()

	for name, pc := range c.Policies {
		initial, err := parseDuration(pc.InitialDelay, 0)
		if err != nil {
			return nil, fmt.Errorf("policy %q initial_delay: %w", name, err)
		}
		max, err := parseDuration(pc.MaxDelay, initial)
		if err != nil {
			return nil, fmt.Errorf("policy %q max_delay: %w", name, err)
		}

		p := retry.Policy{
			MaxAttempts:     pc.MaxAttempts,
			InitialDelay:    initial,
			MaxDelay:        max,
			BackoffMultiple: pc.BackoffMultiple,
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %q: %w", name, err)
		}
		policies[name] = p
	}

	return policies, nil
}

// BreakerSettings converts the breaker section, falling back to breaker
// defaults for anything unset.
func (c *AppConfig) BreakerSettings() (breaker.Config, error) {
	cfg := breaker.DefaultConfig

	if c.Breaker.FailureThreshold > 0 {
		cfg.FailureThreshold = c.Breaker.FailureThreshold
	}

	reset, err := parseDuration(c.Breaker.ResetTimeout, cfg.ResetTimeout)
	if err != nil {
		return breaker.Config{}, fmt.Errorf("circuit_breaker reset_timeout: %w", err)
	}
	cfg.ResetTimeout = reset

	monitoring, err := parseDuration(c.Breaker.MonitoringPeriod, cfg.MonitoringPeriod)
	if err != nil {
		return breaker.Config{}, fmt.Errorf("circuit_breaker monitoring_period: %w", err)
	}
	cfg.MonitoringPeriod = monitoring

	return cfg, nil
}

// RateLimitSettings converts the rate limit section.
func (c *AppConfig) RateLimitSettings() (int, time.Duration, error) {
	limit := c.RateLimit.RequestsPerWindow
	if limit <= 0 {
		limit = 10
	}

	window, err := parseDuration(c.RateLimit.Window, time.Second)
	if err != nil {
		return 0, 0, fmt.Errorf("rate_limit window: %w", err)
	}

	return limit, window, nil
}

// TargetInterval parses a target's probe cadence.
func (t TargetConfig) TargetInterval() (time.Duration, error) {
	return parseDuration(t.Interval, DefaultTargetInterval)
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
