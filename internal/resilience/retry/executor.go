package retry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/snapflow/capshot/internal/resilience/classify"
	"github.com/snapflow/capshot/internal/resilience/metrics"
	"github.com/snapflow/capshot/internal/resilience/report"
)

// Operation is an unreliable unit of work. The executor never inspects
// the result value, it only reacts to the error.
type Operation func(ctx context.Context) (any, error)

// Options tune a single Execute call.
type Options struct {
	// ShouldRetry overrides the classifier's retryability decision.
	// It receives the failure and the attempt number that produced it.
	ShouldRetry func(err error, attempt int) bool

	// Meta is attached to retry diagnostics and the terminal report.
	Meta report.Meta

	// PolicyName labels metrics and logs; defaults to "custom".
	PolicyName string
}

// Executor runs operations under a retry policy. It holds no per-call
// state, a single executor is safe to share across concurrent callers.
type Executor struct {
	policies map[string]Policy
	reporter report.Reporter
	log      *slog.Logger
}

// NewExecutor creates an executor. A nil policy table falls back to the
// built-in presets, a nil reporter to slog-only reporting.
func NewExecutor(policies map[string]Policy, reporter report.Reporter, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	if policies == nil {
		policies = DefaultPolicies()
	}
	if reporter == nil {
		reporter = report.NewSlogReporter(log)
	}
	return &Executor{
		policies: policies,
		reporter: reporter,
		log:      log,
	}
}

// Policy resolves a named preset. Unknown names are a configuration
// error.
func (e *Executor) Policy(name string) (Policy, error) {
	p, ok := e.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p, nil
}

// Execute runs op under policy with default options.
func (e *Executor) Execute(ctx context.Context, op Operation, policy Policy) (any, error) {
	return e.ExecuteWithOptions(ctx, op, policy, Options{})
}

// ExecuteNamed runs op under the preset registered for name.
func (e *Executor) ExecuteNamed(
	ctx context.Context,
	op Operation,
	name string,
	meta report.Meta,
) (any, error) {
	policy, err := e.Policy(name)
	if err != nil {
		return nil, err
	}
	return e.ExecuteWithOptions(ctx, op, policy, Options{Meta: meta, PolicyName: name})
}

// ExecuteWithOptions runs op, retrying classified-retryable failures
// with exponential backoff. The final failure propagates unwrapped; the
// reporter sees it first. Attempts are strictly sequential.
func (e *Executor) ExecuteWithOptions(
	ctx context.Context,
	op Operation,
	policy Policy,
	opts Options,
) (any, error) {
	policy = policy.normalized()

	label := opts.PolicyName
	if label == "" {
		label = "custom"
	}

	var lastErr error
	attempt := 1
	for ; attempt <= policy.MaxAttempts; attempt++ {
		metrics.RetryAttempts.WithLabelValues(label).Inc()

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		cerr := classify.Classify(err)
		metrics.ClassifiedErrors.
			WithLabelValues(cerr.Category.String(), strconv.FormatBool(cerr.Retryable)).
			Inc()

		retryable := cerr.Retryable
		if opts.ShouldRetry != nil {
			retryable = opts.ShouldRetry(err, attempt)
		}
		if !retryable || attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Backoff(attempt)
		e.log.Warn("retrying operation",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"delay", delay,
			"category", cerr.Category,
			"policy", label,
			"job_id", opts.Meta.JobID,
			"url", opts.Meta.URL,
			"error", err,
		)
		metrics.Retries.WithLabelValues(label, cerr.Category.String()).Inc()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	cerr := classify.Classify(lastErr)
	meta := opts.Meta
	meta.RetryCount = attempt - 1
	e.reporter.Report(ctx, report.NewRecord(cerr, meta))
	metrics.TerminalFailures.WithLabelValues(cerr.Category.String()).Inc()

	return nil, lastErr
}
