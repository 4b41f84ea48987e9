// Package breaker guards a single operation with a three-state circuit
// breaker: Closed passes calls through, Open rejects them outright, and
// HalfOpen lets one probe decide which way to go.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/snapflow/capshot/internal/resilience/classify"
	"github.com/snapflow/capshot/internal/resilience/metrics"
)

// ErrOpen is the sentinel wrapped by every rejection while the breaker
// is open. Rejections are pre-classified non-retryable so a surrounding
// retry executor gives up immediately.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker's position in its lifecycle.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config tunes a breaker.
type Config struct {
	// FailureThreshold is the failure count that trips the breaker.
	FailureThreshold int `yaml:"failure_threshold"`
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	// MonitoringPeriod bounds how long failures accumulate; the count
	// resets once this much time passes without a failure.
	MonitoringPeriod time.Duration `yaml:"monitoring_period"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	FailureThreshold: 5,
	ResetTimeout:     30 * time.Second,
	MonitoringPeriod: 60 * time.Second,
}

// Snapshot is a point-in-time view of a breaker for health reporting.
type Snapshot struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// Breaker wraps one operation. Its state is scoped to that binding and
// lives for the lifetime of the wrapper; unrelated operations must use
// their own breakers.
type Breaker struct {
	name string
	op   func(ctx context.Context) (any, error)
	cfg  Config
	log  *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool
}

// New creates a breaker bound to op. Zero config fields fall back to
// DefaultConfig.
func New(
	name string,
	op func(ctx context.Context) (any, error),
	cfg Config,
	log *slog.Logger,
) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig.ResetTimeout
	}
	if cfg.MonitoringPeriod <= 0 {
		cfg.MonitoringPeriod = DefaultConfig.MonitoringPeriod
	}
	if log == nil {
		log = slog.Default()
	}

	metrics.BreakerState.WithLabelValues(name).Set(0)

	return &Breaker{
		name:  name,
		op:    op,
		cfg:   cfg,
		log:   log,
		state: StateClosed,
	}
}

// Call invokes the wrapped operation, or rejects immediately while the
// breaker is open. The wrapped operation is invoked exactly once per
// accepted call.
func (b *Breaker) Call(ctx context.Context) (any, error) {
	if err := b.admit(); err != nil {
		metrics.BreakerRejections.WithLabelValues(b.name).Inc()
		return nil, err
	}

	result, err := b.op(ctx)
	if err != nil {
		b.recordFailure()
		return nil, err
	}

	b.recordSuccess()
	return result, nil
}

// admit decides whether a call may proceed, transitioning Open to
// HalfOpen once the reset timeout has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(b.lastFailure) <= b.cfg.ResetTimeout {
			return b.rejection()
		}
		b.transition(StateHalfOpen)
		b.probing = true
		b.log.Info("circuit breaker probing", "breaker", b.name)
		return nil

	case StateHalfOpen:
		// One probe at a time.
		if b.probing {
			return b.rejection()
		}
		b.probing = true
		return nil
	}

	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.failures = 0
		b.probing = false
		b.transition(StateClosed)
		b.log.Info("circuit breaker closed", "breaker", b.name)
	}
	// A success in Closed state does not reset the failure counter;
	// only monitoring-period expiry or a successful probe do.
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.cfg.MonitoringPeriod {
		b.failures = 0
	}

	b.failures++
	b.lastFailure = now

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
			b.log.Warn("circuit breaker reopened after failed probe",
				"breaker", b.name, "failures", b.failures)
		} else {
			b.transition(StateClosed)
		}

	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
			b.log.Warn("circuit breaker opened",
				"breaker", b.name,
				"failures", b.failures,
				"threshold", b.cfg.FailureThreshold,
			)
		}
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))
	metrics.BreakerTransitions.WithLabelValues(b.name, to.String()).Inc()
}

// rejection builds the pre-classified non-retryable open-breaker error.
// Callers must hold b.mu.
func (b *Breaker) rejection() error {
	return classify.NewClassifiedError(ErrOpen, classify.CategoryNetwork, false, map[string]any{
		"breaker":  b.name,
		"failures": b.failures,
	})
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a view of the breaker for health reporting.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}
