// Package retry runs unreliable operations with exponential backoff,
// consulting the classifier to decide whether a failure is worth
// another attempt.
package retry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultMaxAttempts is the attempt ceiling applied when a policy does
// not configure one. A configured MaxAttempts is always honored as-is;
// there is deliberately no second, hidden ceiling fighting it.
const DefaultMaxAttempts = 3

// ErrUnknownPolicy is returned when a named policy lookup misses. It is
// a configuration error, never a retryable runtime failure.
var ErrUnknownPolicy = errors.New("unknown retry policy")

// Policy defines one retry sequence.
type Policy struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
}

// Preset policy names, one per operation class.
const (
	PolicyNetwork        = "network"
	PolicySelector       = "selector"
	PolicyBrowserSession = "browser-session"
	PolicyUpload         = "upload"
)

// DefaultPolicies returns the built-in preset table. Config may override
// individual entries.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyNetwork: {
			MaxAttempts:     3,
			InitialDelay:    1 * time.Second,
			MaxDelay:        10 * time.Second,
			BackoffMultiple: 2.0,
		},
		PolicySelector: {
			MaxAttempts:     4,
			InitialDelay:    500 * time.Millisecond,
			MaxDelay:        5 * time.Second,
			BackoffMultiple: 1.5,
		},
		PolicyBrowserSession: {
			MaxAttempts:     2,
			InitialDelay:    2 * time.Second,
			MaxDelay:        30 * time.Second,
			BackoffMultiple: 2.0,
		},
		PolicyUpload: {
			MaxAttempts:     5,
			InitialDelay:    1 * time.Second,
			MaxDelay:        60 * time.Second,
			BackoffMultiple: 2.0,
		},
	}
}

// Backoff returns the delay before attempt n+1, capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiple, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0, got %s", p.InitialDelay)
	}
	if p.BackoffMultiple < 1 {
		return fmt.Errorf("backoff_multiple must be >= 1, got %g", p.BackoffMultiple)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max_delay %s must be >= initial_delay %s", p.MaxDelay, p.InitialDelay)
	}
	return nil
}

// normalized fills zero values so a partially specified policy still
// behaves sanely.
func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BackoffMultiple < 1 {
		p.BackoffMultiple = 1
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}
