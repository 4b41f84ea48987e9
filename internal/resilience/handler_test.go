package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/snapflow/capshot/internal/resilience/breaker"
	"github.com/snapflow/capshot/internal/resilience/classify"
	"github.com/snapflow/capshot/internal/resilience/report"
	"github.com/snapflow/capshot/internal/resilience/retry"
)

type memReporter struct {
	mu      sync.Mutex
	records []report.Record
}

func (m *memReporter) Report(_ context.Context, rec report.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func (m *memReporter) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func newTestHandler() (*Handler, *memReporter) {
	rep := &memReporter{}
	h := New(Config{
		Reporter: rep,
		Logger:   slog.New(slog.DiscardHandler),
	})
	return h, rep
}

func fastPolicy(maxAttempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		BackoffMultiple: 2.0,
	}
}

func TestExecuteWithRetryRecovers(t *testing.T) {
	h, rep := newTestHandler()

	calls := 0
	result, err := h.ExecuteWithRetry(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection refused")
		}
		return 42, nil
	}, fastPolicy(3), retry.Options{})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("result = %v, want 42", result)
	}
	if rep.len() != 0 {
		t.Errorf("reports = %d, want 0 on recovery", rep.len())
	}
}

func TestExecuteWithNamedPolicyResolvesPreset(t *testing.T) {
	h, _ := newTestHandler()

	calls := 0
	_, err := h.ExecuteWithNamedPolicy(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("failed to parse")
	}, retry.PolicyNetwork, report.Meta{})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for non-retryable failure", calls)
	}

	_, err = h.ExecuteWithNamedPolicy(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	}, "bogus", report.Meta{})
	if !errors.Is(err, retry.ErrUnknownPolicy) {
		t.Errorf("error = %v, want ErrUnknownPolicy", err)
	}
}

func TestWrapWithErrorHandlingReportsAndRethrows(t *testing.T) {
	h, rep := newTestHandler()

	boom := errors.New("target closed")
	wrapped := h.WrapWithErrorHandling(func(ctx context.Context) (any, error) {
		return nil, boom
	}, report.Meta{JobID: "job-3"})

	_, err := wrapped(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want original rethrown", err)
	}
	if rep.len() != 1 {
		t.Fatalf("reports = %d, want 1", rep.len())
	}

	// Success path stays silent.
	wrapped = h.WrapWithErrorHandling(func(ctx context.Context) (any, error) {
		return "fine", nil
	}, report.Meta{})
	result, err := wrapped(context.Background())
	if err != nil || result != "fine" {
		t.Errorf("wrapped success = %v, %v", result, err)
	}
	if rep.len() != 1 {
		t.Errorf("reports = %d after success, want still 1", rep.len())
	}
}

func TestBreakerRejectionIsNotRetried(t *testing.T) {
	h, _ := newTestHandler()

	// A permanently failing operation behind a tight breaker.
	calls := 0
	failing := func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("connection refused")
	}
	b := h.NewCircuitBreaker("job-fetch", failing, breaker.Config{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		MonitoringPeriod: time.Minute,
	})

	ctx := context.Background()
	b.Call(ctx) // trips the breaker

	// The retry executor must give up on the first rejection instead of
	// hammering an open breaker.
	_, err := h.ExecuteWithRetry(ctx, b.Call, fastPolicy(5), retry.Options{})
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("error = %v, want ErrOpen", err)
	}
	if calls != 1 {
		t.Errorf("operation calls = %d, want 1 (rejections never reach it)", calls)
	}
}

func TestRateLimiterFromHandler(t *testing.T) {
	h, _ := newTestHandler()

	l := h.NewRateLimiter(2, 100*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("third acquire after %s, want to wait out the window", elapsed)
	}
}

func TestClassifyFacade(t *testing.T) {
	if got := Classify(errors.New("dns failure")); got != classify.CategoryNetwork {
		t.Errorf("Classify = %v, want network", got)
	}
	if got := Classify(errors.New("element not found")); got != classify.CategorySelectorNotFound {
		t.Errorf("Classify = %v, want selector_not_found", got)
	}
}
