// Package resilience ties the retry executor, classifier, circuit
// breaker and rate limiter together behind one dependency-injected
// handler. There is deliberately no shared global instance; every
// consumer constructs (or is handed) its own Handler.
package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/snapflow/capshot/internal/resilience/breaker"
	"github.com/snapflow/capshot/internal/resilience/classify"
	"github.com/snapflow/capshot/internal/resilience/ratelimit"
	"github.com/snapflow/capshot/internal/resilience/report"
	"github.com/snapflow/capshot/internal/resilience/retry"
)

// Operation is an unreliable unit of work.
type Operation = retry.Operation

// Config assembles a Handler.
type Config struct {
	// Policies overrides the built-in preset table; nil keeps defaults.
	Policies map[string]retry.Policy
	// Reporter receives terminal failure records; nil logs via slog only.
	Reporter report.Reporter
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Handler is the entry point consumers use to run operations under the
// resilience policies.
type Handler struct {
	exec     *retry.Executor
	reporter report.Reporter
	log      *slog.Logger
}

// New creates a Handler.
func New(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = report.NewSlogReporter(log)
	}
	return &Handler{
		exec:     retry.NewExecutor(cfg.Policies, reporter, log),
		reporter: reporter,
		log:      log,
	}
}

// Policy resolves a named retry policy from the handler's table.
func (h *Handler) Policy(name string) (retry.Policy, error) {
	return h.exec.Policy(name)
}

// ExecuteWithRetry runs op under an explicit policy.
func (h *Handler) ExecuteWithRetry(
	ctx context.Context,
	op Operation,
	policy retry.Policy,
	opts retry.Options,
) (any, error) {
	return h.exec.ExecuteWithOptions(ctx, op, policy, opts)
}

// ExecuteWithNamedPolicy runs op under a preset selected by name.
// Unknown names return retry.ErrUnknownPolicy without invoking op.
func (h *Handler) ExecuteWithNamedPolicy(
	ctx context.Context,
	op Operation,
	name string,
	meta report.Meta,
) (any, error) {
	return h.exec.ExecuteNamed(ctx, op, name, meta)
}

// WrapWithErrorHandling returns an operation with an identical signature
// that reports every failure before rethrowing it unchanged.
func (h *Handler) WrapWithErrorHandling(op Operation, meta report.Meta) Operation {
	return func(ctx context.Context) (any, error) {
		result, err := op(ctx)
		if err != nil {
			cerr := classify.Classify(err)
			h.reporter.Report(ctx, report.NewRecord(cerr, meta))
			return nil, err
		}
		return result, nil
	}
}

// NewCircuitBreaker binds op to a fresh breaker; Call on the returned
// breaker is the guarded operation.
func (h *Handler) NewCircuitBreaker(name string, op Operation, cfg breaker.Config) *breaker.Breaker {
	return breaker.New(name, op, cfg, h.log)
}

// NewRateLimiter creates a sliding-window limiter; Acquire on the
// returned limiter claims an execution slot.
func (h *Handler) NewRateLimiter(requestsPerWindow int, window time.Duration) *ratelimit.Limiter {
	return ratelimit.New(requestsPerWindow, window)
}

// Classify maps a failure to its semantic category.
func Classify(err error) classify.Category {
	return classify.CategoryOf(err)
}
