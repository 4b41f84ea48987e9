// Package control wires configuration into a running capture probe: a
// resilience handler per deployment, one circuit breaker per target and
// a shared rate limiter, plus the health server and failure journal.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/snapflow/capshot/internal/core/config"
	"github.com/snapflow/capshot/internal/health"
	redisclient "github.com/snapflow/capshot/internal/infra/redis"
	"github.com/snapflow/capshot/internal/resilience"
	"github.com/snapflow/capshot/internal/resilience/breaker"
	"github.com/snapflow/capshot/internal/resilience/ratelimit"
	"github.com/snapflow/capshot/internal/resilience/report"
)

// Probe periodically executes resilient fetches against the configured
// targets. It is the in-process consumer of the resilience core.
type Probe struct {
	cfg     *config.AppConfig
	handler *resilience.Handler
	targets []*probeTarget
	limiter *ratelimit.Limiter

	healthServer *health.Server
	redisClient  *redisclient.Client
	journal      *report.FailureJournal
	log          *slog.Logger

	captures atomic.Int64
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type probeTarget struct {
	cfg      config.TargetConfig
	interval time.Duration
	breaker  *breaker.Breaker
}

// NewProbe creates a probe with all dependencies initialized.
func NewProbe(cfg *config.AppConfig) (*Probe, error) {
	log := slog.Default()

	// Terminal failures always reach the log; the journal is added when
	// Redis is configured.
	var journal *report.FailureJournal
	var redisClient *redisclient.Client
	reporter := report.Reporter(report.NewSlogReporter(log))
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		journal = report.NewFailureJournal(redisClient, "capshot")
		reporter = report.MultiReporter{
			report.NewSlogReporter(log),
			report.NewJournalReporter(journal),
		}
	}

	policies, err := cfg.RetryPolicies()
	if err != nil {
		return nil, err
	}

	handler := resilience.New(resilience.Config{
		Policies: policies,
		Reporter: reporter,
		Logger:   log,
	})

	breakerCfg, err := cfg.BreakerSettings()
	if err != nil {
		return nil, err
	}

	limit, window, err := cfg.RateLimitSettings()
	if err != nil {
		return nil, err
	}
	limiter := handler.NewRateLimiter(limit, window)

	httpClient := &http.Client{Timeout: 15 * time.Second}

	p := &Probe{
		cfg:         cfg,
		handler:     handler,
		limiter:     limiter,
		redisClient: redisClient,
		journal:     journal,
		log:         log,
	}

	var breakers []*breaker.Breaker
	for _, target := range cfg.Targets {
		interval, err := target.TargetInterval()
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", target.Name, err)
		}
		if _, err := handler.Policy(target.Policy); err != nil {
			return nil, fmt.Errorf("target %q: %w", target.Name, err)
		}

		b := handler.NewCircuitBreaker(target.Name, fetchOperation(httpClient, target.URL), breakerCfg)
		breakers = append(breakers, b)
		p.targets = append(p.targets, &probeTarget{
			cfg:      target,
			interval: interval,
			breaker:  b,
		})
	}

	var journalCount func(ctx context.Context) (int, error)
	if journal != nil {
		journalCount = journal.Count
	}
	monitor := health.NewMonitor(breakers, limiter, journalCount)
	p.healthServer = health.NewServer(monitor, cfg.Server.Port)

	return p, nil
}

// Start launches the health server and one capture loop per target.
func (p *Probe) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	go func() {
		if err := p.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error("health server failed", "error", err)
		}
	}()

	for _, target := range p.targets {
		p.wg.Add(1)
		go p.runTarget(ctx, target)
	}

	p.log.Info("probe started",
		"targets", len(p.targets),
		"port", p.cfg.Server.Port,
	)
	return nil
}

// Stop shuts the probe down, waiting for in-flight captures.
func (p *Probe) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.healthServer.Stop(ctx); err != nil {
		return err
	}
	if p.redisClient != nil {
		return p.redisClient.Close()
	}
	return nil
}

// Captures returns how many captures completed successfully.
func (p *Probe) Captures() int64 {
	return p.captures.Load()
}

func (p *Probe) runTarget(ctx context.Context, target *probeTarget) {
	defer p.wg.Done()

	ticker := time.NewTicker(target.interval)
	defer ticker.Stop()

	// First capture immediately, then on cadence.
	p.capture(ctx, target)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.capture(ctx, target)
		}
	}
}

func (p *Probe) capture(ctx context.Context, target *probeTarget) {
	if err := p.limiter.Acquire(ctx); err != nil {
		return
	}

	meta := report.Meta{
		JobID:         uuid.NewString(),
		URL:           target.cfg.URL,
		DeviceProfile: target.cfg.DeviceProfile,
		Timestamp:     time.Now(),
	}

	result, err := p.handler.ExecuteWithNamedPolicy(ctx, target.breaker.Call, target.cfg.Policy, meta)
	if err != nil {
		// Already reported by the executor; nothing else owns this failure.
		return
	}

	size := 0
	if body, ok := result.([]byte); ok {
		size = len(body)
	}
	p.captures.Add(1)
	p.log.Debug("capture succeeded",
		"target", target.cfg.Name,
		"job_id", meta.JobID,
		"bytes", size,
	)
}
