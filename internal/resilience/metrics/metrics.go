package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryAttempts tracks operation attempts per policy
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capshot_retry_attempts_total",
			Help: "Total number of operation attempts",
		},
		[]string{"policy"},
	)

	// Retries tracks retries (attempts after the first) per policy and category
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capshot_retries_total",
			Help: "Total number of retries by failure category",
		},
		[]string{"policy", "category"},
	)

	// TerminalFailures tracks failures that exhausted retries or were non-retryable
	TerminalFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capshot_terminal_failures_total",
			Help: "Total number of terminal failures by category",
		},
		[]string{"category"},
	)

	// BreakerState tracks the current circuit breaker state (0=closed, 1=half-open, 2=open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capshot_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	// BreakerTransitions tracks breaker state transitions
	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capshot_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"breaker", "to"},
	)

	// BreakerRejections tracks calls rejected while the breaker was open
	BreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capshot_breaker_rejections_total",
			Help: "Total number of calls rejected by an open circuit breaker",
		},
		[]string{"breaker"},
	)

	// RateLimitWait tracks how long acquisitions waited for a window slot
	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "capshot_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a rate limiter slot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ClassifiedErrors tracks classified failures by category and retryability
	ClassifiedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capshot_classified_errors_total",
			Help: "Total number of classified failures",
		},
		[]string{"category", "retryable"},
	)
)
