package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/entitysync/internal/domain"
)

// RetryStore is an in-process retry tracker store.
type RetryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]domain.RetryRecord
}

// NewRetryStore creates an empty store.
func NewRetryStore() *RetryStore {
	return &RetryStore{now: time.Now, entries: map[string]domain.RetryRecord{}}
}

// SetClock overrides the time source.
func (s *RetryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *RetryStore) Increment(ctx context.Context, messageID, lastError, entityType string) (domain.RetryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	record, ok := s.entries[messageID]
	if !ok {
		record = domain.RetryRecord{
			MessageID:      messageID,
			State:          domain.RetryStateRetrying,
			FirstAttemptAt: now,
			EntityType:     entityType,
		}
	}
	record.RetryCount++
	record.LastError = lastError
	record.LastAttemptAt = now
	if entityType != "" {
		record.EntityType = entityType
	}
	s.entries[messageID] = record
	return record, nil
}

func (s *RetryStore) Get(ctx context.Context, messageID string) (domain.RetryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.entries[messageID]
	if !ok {
		return domain.RetryRecord{}, fmt.Errorf("retry %s: %w", messageID, domain.ErrRecordNotFound)
	}
	return record, nil
}

func (s *RetryStore) SetState(ctx context.Context, messageID string, state domain.RetryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.entries[messageID]
	if !ok {
		return nil
	}
	record.State = state
	record.LastAttemptAt = s.now()
	s.entries[messageID] = record
	return nil
}

func (s *RetryStore) DeleteSucceededBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, record := range s.entries {
		if record.State == domain.RetryStateSuccess && record.LastAttemptAt.Before(cutoff) {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *RetryStore) Stats(ctx context.Context) (domain.RetryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats domain.RetryStats
	for _, record := range s.entries {
		switch record.State {
		case domain.RetryStateRetrying:
			stats.TotalRetrying++
		case domain.RetryStateMovedToDLQ:
			stats.TotalMovedToDLQ++
		case domain.RetryStateSuccess:
			if record.RetryCount > 0 {
				stats.TotalSuccessWithRetries++
			}
		}
	}
	return stats, nil
}

func (s *RetryStore) List(ctx context.Context, state domain.RetryState, limit int) ([]domain.RetryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.RetryRecord{}
	for _, record := range s.entries {
		if state == "" || record.State == state {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAttemptAt.After(out[j].LastAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
