package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	redisclient "github.com/snapflow/capshot/internal/infra/redis"
)

// journalTTL bounds how long a journaled failure is kept before an
// external requeue worker must have picked it up.
const journalTTL = 24 * time.Hour

// FailureJournal persists terminal failure records in Redis so an
// external requeue worker can retry the underlying capture jobs.
// Records are queued in a sorted set scored by retry count, so the
// least-retried failures are picked up first.
type FailureJournal struct {
	rdb       *redis.Client
	namespace string
}

// NewFailureJournal creates a journal on top of an established client.
func NewFailureJournal(client *redisclient.Client, namespace string) *FailureJournal {
	return &FailureJournal{
		rdb:       client.RDB(),
		namespace: namespace,
	}
}

func (j *FailureJournal) queueKey() string {
	return fmt.Sprintf("failed_captures:%s", j.namespace)
}

func (j *FailureJournal) recordKey(id string) string {
	return fmt.Sprintf("failed_capture:%s:%s", j.namespace, id)
}

// Add journals a terminal failure record.
func (j *FailureJournal) Add(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := j.rdb.Set(ctx, j.recordKey(rec.ID), data, journalTTL).Err(); err != nil {
		return fmt.Errorf("failed to set record: %w", err)
	}

	// Lower retry count = retried first.
	if err := j.rdb.ZAdd(ctx, j.queueKey(), redis.Z{
		Score:  float64(rec.RetryCount),
		Member: rec.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	return nil
}

// Next retrieves the next record to requeue, or nil when the journal is
// empty.
func (j *FailureJournal) Next(ctx context.Context) (*Record, error) {
	ids, err := j.rdb.ZRange(ctx, j.queueKey(), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	id := ids[0]
	data, err := j.rdb.Get(ctx, j.recordKey(id)).Bytes()
	if err == redis.Nil {
		// Record expired but the ID is still queued, drop it.
		j.rdb.ZRem(ctx, j.queueKey(), id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return &rec, nil
}

// IncrementRetry bumps a record's retry count and pushes it back in the
// queue ordering.
func (j *FailureJournal) IncrementRetry(ctx context.Context, id string) error {
	data, err := j.rdb.Get(ctx, j.recordKey(id)).Bytes()
	if err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}

	rec.RetryCount++
	rec.Timestamp = time.Now()

	newData, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := j.rdb.Set(ctx, j.recordKey(id), newData, journalTTL).Err(); err != nil {
		return fmt.Errorf("failed to set record: %w", err)
	}

	if err := j.rdb.ZAdd(ctx, j.queueKey(), redis.Z{
		Score:  float64(rec.RetryCount),
		Member: id,
	}).Err(); err != nil {
		return fmt.Errorf("failed to update queue: %w", err)
	}

	return nil
}

// Resolve removes a record once the capture has been successfully redone.
func (j *FailureJournal) Resolve(ctx context.Context, id string) error {
	if err := j.rdb.ZRem(ctx, j.queueKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}
	if err := j.rdb.Del(ctx, j.recordKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Count returns the number of journaled failures.
func (j *FailureJournal) Count(ctx context.Context) (int, error) {
	count, err := j.rdb.ZCard(ctx, j.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}

// JournalReporter adapts the journal to the Reporter interface. Journal
// write failures are swallowed, reporting must never mask the original
// failure.
type JournalReporter struct {
	journal *FailureJournal
}

// NewJournalReporter wraps a journal as a Reporter.
func NewJournalReporter(journal *FailureJournal) *JournalReporter {
	return &JournalReporter{journal: journal}
}

// Report journals the record, ignoring journal errors.
func (r *JournalReporter) Report(ctx context.Context, rec Record) {
	_ = r.journal.Add(ctx, rec)
}
