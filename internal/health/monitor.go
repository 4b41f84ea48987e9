// Package health exposes the resilience layer's state over HTTP for
// liveness checks and Prometheus scraping.
package health

import (
	"context"
	"time"

	"github.com/snapflow/capshot/internal/resilience/breaker"
)

// Status is the aggregate health verdict.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// LimiterSource is the view of a rate limiter the monitor needs.
type LimiterSource interface {
	InWindow() int
	Limit() int
	Window() time.Duration
}

// RateLimitStatus is the limiter part of a health report.
type RateLimitStatus struct {
	InWindow int    `json:"in_window"`
	Limit    int    `json:"limit"`
	Window   string `json:"window"`
}

// Report is the detailed health payload.
type Report struct {
	Status    Status             `json:"status"`
	Breakers  []breaker.Snapshot `json:"breakers"`
	RateLimit *RateLimitStatus   `json:"rate_limit,omitempty"`
	Journaled int                `json:"journaled_failures"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Monitor aggregates breaker and limiter state into one report.
type Monitor struct {
	breakers     []*breaker.Breaker
	limiter      LimiterSource
	journalCount func(ctx context.Context) (int, error)
}

// NewMonitor creates a monitor. limiter and journalCount may be nil.
func NewMonitor(
	breakers []*breaker.Breaker,
	limiter LimiterSource,
	journalCount func(ctx context.Context) (int, error),
) *Monitor {
	return &Monitor{
		breakers:     breakers,
		limiter:      limiter,
		journalCount: journalCount,
	}
}

// Check builds the current report. Worst breaker state wins: any open
// breaker makes the system critical, any half-open degraded.
func (m *Monitor) Check(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		UpdatedAt: time.Now(),
	}

	for _, b := range m.breakers {
		snap := b.Snapshot()
		report.Breakers = append(report.Breakers, snap)

		switch b.State() {
		case breaker.StateOpen:
			report.Status = StatusCritical
		case breaker.StateHalfOpen:
			if report.Status != StatusCritical {
				report.Status = StatusDegraded
			}
		}
	}

	if m.limiter != nil {
		report.RateLimit = &RateLimitStatus{
			InWindow: m.limiter.InWindow(),
			Limit:    m.limiter.Limit(),
			Window:   m.limiter.Window().String(),
		}
	}

	if m.journalCount != nil {
		if n, err := m.journalCount(ctx); err == nil {
			report.Journaled = n
		}
	}

	return report
}
