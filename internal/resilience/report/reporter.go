// Package report turns classified failures into structured diagnostic
// records and hands them to a logging sink, and optionally to a
// Redis-backed journal for later requeue.
package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/snapflow/capshot/internal/resilience/classify"
)

// UnknownValue is the sentinel used for metadata the caller did not supply.
const UnknownValue = "unknown"

// Meta carries the contextual metadata supplied per call. All fields are
// optional; missing values fall back to sentinels when the record is built.
type Meta struct {
	JobID         string
	URL           string
	Selector      string
	DeviceProfile string
	RetryCount    int
	Timestamp     time.Time
}

// Record is the structured diagnostic produced for a terminal failure.
type Record struct {
	ID            string         `json:"id"`
	Category      string         `json:"category"`
	Retryable     bool           `json:"retryable"`
	StatusCode    int            `json:"status_code,omitempty"`
	Message       string         `json:"message"`
	JobID         string         `json:"job_id"`
	URL           string         `json:"url"`
	Selector      string         `json:"selector"`
	DeviceProfile string         `json:"device_profile"`
	RetryCount    int            `json:"retry_count"`
	Timestamp     time.Time      `json:"timestamp"`
	Context       map[string]any `json:"context,omitempty"`
}

// NewRecord builds a Record from a classified failure and its metadata,
// filling sentinel defaults for anything absent.
func NewRecord(cerr *classify.ClassifiedError, meta Meta) Record {
	rec := Record{
		ID:            uuid.NewString(),
		Category:      cerr.Category.String(),
		Retryable:     cerr.Retryable,
		StatusCode:    cerr.StatusCode,
		Message:       cerr.Error(),
		JobID:         meta.JobID,
		URL:           meta.URL,
		Selector:      meta.Selector,
		DeviceProfile: meta.DeviceProfile,
		RetryCount:    meta.RetryCount,
		Timestamp:     meta.Timestamp,
		Context:       cerr.Context,
	}

	if rec.JobID == "" {
		rec.JobID = UnknownValue
	}
	if rec.URL == "" {
		rec.URL = UnknownValue
	}
	if rec.Selector == "" {
		rec.Selector = UnknownValue
	}
	if rec.DeviceProfile == "" {
		rec.DeviceProfile = UnknownValue
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	return rec
}

// Reporter receives terminal failure records. Reporting is a side effect
// parallel to error propagation, never a substitute for it.
type Reporter interface {
	Report(ctx context.Context, rec Record)
}

// SlogReporter logs records through a *slog.Logger.
type SlogReporter struct {
	log *slog.Logger
}

// NewSlogReporter creates a reporter writing to log, or slog.Default()
// when log is nil.
func NewSlogReporter(log *slog.Logger) *SlogReporter {
	if log == nil {
		log = slog.Default()
	}
	return &SlogReporter{log: log}
}

// Report logs the record.
func (r *SlogReporter) Report(ctx context.Context, rec Record) {
	attrs := []any{
		"report_id", rec.ID,
		"category", rec.Category,
		"retryable", rec.Retryable,
		"job_id", rec.JobID,
		"url", rec.URL,
		"selector", rec.Selector,
		"device_profile", rec.DeviceProfile,
		"retry_count", rec.RetryCount,
	}
	if rec.StatusCode != 0 {
		attrs = append(attrs, "status_code", rec.StatusCode)
	}

	// Reports are only produced for terminal failures, which are hard
	// errors regardless of the category's intrinsic retryability.
	r.log.ErrorContext(ctx, rec.Message, attrs...)
}

// MultiReporter fans a record out to several reporters.
type MultiReporter []Reporter

// Report forwards the record to every reporter in order.
func (m MultiReporter) Report(ctx context.Context, rec Record) {
	for _, r := range m {
		r.Report(ctx, rec)
	}
}
