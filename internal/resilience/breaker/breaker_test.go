package breaker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/snapflow/capshot/internal/resilience/classify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		ResetTimeout:     100 * time.Millisecond,
		MonitoringPeriod: time.Second,
	}
}

// flakyOp fails while fail is true.
type flakyOp struct {
	calls int
	fail  bool
}

func (f *flakyOp) invoke(ctx context.Context) (any, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("connection refused")
	}
	return "ok", nil
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	op := &flakyOp{fail: true}
	b := New("capture", op.invoke, testConfig(), discardLogger())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := b.Call(ctx); err == nil {
			t.Fatal("expected failure")
		}
	}

	if got := b.State(); got != StateOpen {
		t.Fatalf("state after 3 failures = %v, want open", got)
	}
	if op.calls != 3 {
		t.Errorf("operation calls = %d, want 3", op.calls)
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	op := &flakyOp{fail: true}
	b := New("capture", op.invoke, testConfig(), discardLogger())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.Call(ctx)
	}

	_, err := b.Call(ctx)
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("error = %v, want ErrOpen", err)
	}
	if op.calls != 3 {
		t.Errorf("operation invoked while open: calls = %d, want 3", op.calls)
	}

	// Rejections come pre-classified and non-retryable.
	var cerr *classify.ClassifiedError
	if !errors.As(err, &cerr) {
		t.Fatal("rejection should be a ClassifiedError")
	}
	if cerr.Retryable {
		t.Error("open-breaker rejection must not be retryable")
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	op := &flakyOp{fail: true}
	cfg := testConfig()
	b := New("capture", op.invoke, cfg, discardLogger())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.Call(ctx)
	}

	time.Sleep(cfg.ResetTimeout + 20*time.Millisecond)

	op.fail = false
	result, err := b.Call(ctx)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if result != "ok" {
		t.Errorf("probe result = %v, want ok", result)
	}

	snap := b.Snapshot()
	if snap.State != "closed" {
		t.Errorf("state after successful probe = %s, want closed", snap.State)
	}
	if snap.Failures != 0 {
		t.Errorf("failures after successful probe = %d, want 0", snap.Failures)
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	op := &flakyOp{fail: true}
	cfg := testConfig()
	b := New("capture", op.invoke, cfg, discardLogger())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.Call(ctx)
	}

	time.Sleep(cfg.ResetTimeout + 20*time.Millisecond)

	calls := op.calls
	if _, err := b.Call(ctx); err == nil {
		t.Fatal("expected probe to fail")
	}
	if op.calls != calls+1 {
		t.Errorf("probe invoked %d times, want exactly 1", op.calls-calls)
	}

	if got := b.State(); got != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", got)
	}

	// Fresh lastFailureTime: an immediate call is rejected again.
	if _, err := b.Call(ctx); !errors.Is(err, ErrOpen) {
		t.Errorf("error = %v, want ErrOpen right after failed probe", err)
	}
}

func TestBreakerClosedSuccessDoesNotResetCounter(t *testing.T) {
	op := &flakyOp{fail: true}
	b := New("capture", op.invoke, testConfig(), discardLogger())

	ctx := context.Background()
	b.Call(ctx)
	b.Call(ctx)

	op.fail = false
	if _, err := b.Call(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap := b.Snapshot(); snap.Failures != 2 {
		t.Errorf("failures after closed-state success = %d, want 2", snap.Failures)
	}

	// One more failure trips the breaker.
	op.fail = true
	b.Call(ctx)
	if got := b.State(); got != StateOpen {
		t.Errorf("state = %v, want open after third cumulative failure", got)
	}
}

func TestBreakerMonitoringPeriodResetsCounter(t *testing.T) {
	op := &flakyOp{fail: true}
	cfg := Config{
		FailureThreshold: 3,
		ResetTimeout:     time.Second,
		MonitoringPeriod: 50 * time.Millisecond,
	}
	b := New("capture", op.invoke, cfg, discardLogger())

	ctx := context.Background()
	b.Call(ctx)
	b.Call(ctx)

	// Let the monitoring period elapse; stale failures no longer count.
	time.Sleep(80 * time.Millisecond)

	b.Call(ctx)
	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want closed (stale failures discarded)", got)
	}
	if snap := b.Snapshot(); snap.Failures != 1 {
		t.Errorf("failures = %d, want 1 after monitoring reset", snap.Failures)
	}
}

func TestBreakerPassesThroughResults(t *testing.T) {
	op := &flakyOp{}
	b := New("capture", op.invoke, testConfig(), discardLogger())

	result, err := b.Call(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}
	if op.calls != 1 {
		t.Errorf("calls = %d, want 1", op.calls)
	}
}
