package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/entitysync/internal/domain"

	"github.com/google/uuid"
)

// DeadLetterStore is an in-process dead-letter store keyed by message id.
type DeadLetterStore struct {
	mu      sync.Mutex
	entries map[string]domain.DeadLetterEntry
}

// NewDeadLetterStore creates an empty store.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{entries: map[string]domain.DeadLetterEntry{}}
}

func (s *DeadLetterStore) Upsert(ctx context.Context, entry domain.DeadLetterEntry) (domain.DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[entry.MessageID]
	if ok {
		existing.RawPayload = append([]byte(nil), entry.RawPayload...)
		existing.EntityType = entry.EntityType
		existing.ErrorMessage = entry.ErrorMessage
		existing.ErrorTrace = entry.ErrorTrace
		existing.RetryCount = entry.RetryCount
		existing.State = entry.State
		existing.LastAttemptAt = time.Now().UTC()
		s.entries[entry.MessageID] = existing
		return existing, nil
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	s.entries[entry.MessageID] = entry
	return entry, nil
}

func (s *DeadLetterStore) GetByID(ctx context.Context, id uuid.UUID) (domain.DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return domain.DeadLetterEntry{}, fmt.Errorf("dead letter %s: %w", id, domain.ErrRecordNotFound)
}

func (s *DeadLetterStore) GetByMessageID(ctx context.Context, messageID string) (domain.DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[messageID]
	if !ok {
		return domain.DeadLetterEntry{}, fmt.Errorf("dead letter %s: %w", messageID, domain.ErrRecordNotFound)
	}
	return entry, nil
}

func (s *DeadLetterStore) Update(ctx context.Context, entry domain.DeadLetterEntry) (domain.DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[entry.MessageID]
	if !ok || existing.ID != entry.ID {
		return domain.DeadLetterEntry{}, fmt.Errorf("dead letter %s: %w", entry.ID, domain.ErrRecordNotFound)
	}
	s.entries[entry.MessageID] = entry
	return entry, nil
}

func (s *DeadLetterStore) List(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.DeadLetterEntry{}
	for _, entry := range s.entries {
		if filter.State != "" && entry.State != filter.State {
			continue
		}
		if filter.EntityType != "" && entry.EntityType != filter.EntityType {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAttemptAt.After(out[j].LastAttemptAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
