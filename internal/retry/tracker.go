package retry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/metrics"
	"github.com/rpattn/entitysync/internal/repository"
)

const (
	DefaultMaxRetries = 3
	DefaultRetention  = 7 * 24 * time.Hour
)

// Tracker counts delivery failures per message id and decides when a message
// has used up its retries.
type Tracker struct {
	repo       repository.RetryRepository
	maxRetries int
	retention  time.Duration
	now        func() time.Time
	metrics    *metrics.Recorder
}

func NewTracker(repo repository.RetryRepository, maxRetries int, retention time.Duration, recorder *metrics.Recorder) *Tracker {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{repo: repo, maxRetries: maxRetries, retention: retention, now: time.Now, metrics: recorder}
}

// MaxRetries is the number of failed attempts tolerated before quarantine.
func (t *Tracker) MaxRetries() int {
	return t.maxRetries
}

// RecordFailure counts one failed attempt. The message must be quarantined once
// the count exceeds the maximum.
func (t *Tracker) RecordFailure(ctx context.Context, messageID string, cause error, entityType string) (domain.RetryDecision, error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	record, err := t.repo.Increment(ctx, messageID, message, entityType)
	if err != nil {
		return domain.RetryDecision{}, fmt.Errorf("failed to record retry for %s: %w", messageID, err)
	}
	t.metrics.RetryRecorded(domain.ErrorKind(cause))

	decision := domain.RetryDecision{
		AttemptCount:     record.RetryCount,
		ShouldQuarantine: record.RetryCount > t.maxRetries,
	}
	log.Printf("[RETRY] %s attempt %d/%d failed: %s", messageID, record.RetryCount, t.maxRetries, message)
	return decision, nil
}

// RecordSuccess closes a tracked message. Messages that never failed have no entry.
func (t *Tracker) RecordSuccess(ctx context.Context, messageID string) error {
	if err := t.repo.SetState(ctx, messageID, domain.RetryStateSuccess); err != nil {
		return fmt.Errorf("failed to mark %s as succeeded: %w", messageID, err)
	}
	return nil
}

// MarkQuarantined records that a message went to the dead-letter store.
func (t *Tracker) MarkQuarantined(ctx context.Context, messageID string) error {
	if err := t.repo.SetState(ctx, messageID, domain.RetryStateMovedToDLQ); err != nil {
		return fmt.Errorf("failed to mark %s as quarantined: %w", messageID, err)
	}
	return nil
}

// Sweep deletes succeeded entries older than the retention window.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	cutoff := t.now().Add(-t.retention)
	deleted, err := t.repo.DeleteSucceededBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep retry entries: %w", err)
	}
	log.Printf("[SWEEP] removed %d succeeded retry entries older than %s", deleted, cutoff.Format(time.RFC3339))
	return deleted, nil
}

func (t *Tracker) Stats(ctx context.Context) (domain.RetryStats, error) {
	return t.repo.Stats(ctx)
}

func (t *Tracker) Get(ctx context.Context, messageID string) (domain.RetryRecord, error) {
	return t.repo.Get(ctx, messageID)
}

func (t *Tracker) List(ctx context.Context, state domain.RetryState, limit int) ([]domain.RetryRecord, error) {
	return t.repo.List(ctx, state, limit)
}
