package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rpattn/entitysync/internal/domain"
)

// RecordStore is an in-process record store used for tests and local runs.
type RecordStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[string]map[int64]domain.Record
	writes  int
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: map[string]map[int64]domain.Record{}}
}

// Writes returns the number of Create and Update calls served so far.
func (s *RecordStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *RecordStore) Search(ctx context.Context, collection string, criteria []domain.Criterion, opts domain.SearchOptions) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := []domain.Record{}
	for _, record := range s.records[collection] {
		if !opts.IncludeInactive && !record.Active() {
			continue
		}
		if matchesAll(record, criteria) {
			matches = append(matches, cloneRecord(record))
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

func matchesAll(record domain.Record, criteria []domain.Criterion) bool {
	for _, criterion := range criteria {
		if !matches(record.Get(criterion.Field), criterion) {
			return false
		}
	}
	return true
}

func matches(stored any, criterion domain.Criterion) bool {
	if criterion.Value == nil {
		return !domain.Truthy(stored)
	}
	if stored == nil {
		return false
	}
	have := domain.AsString(stored)
	want := domain.AsString(criterion.Value)
	switch criterion.Op {
	case domain.OpIEq:
		return strings.EqualFold(have, want)
	case domain.OpILike:
		return strings.Contains(strings.ToLower(have), strings.ToLower(want))
	}
	return have == want
}

func (s *RecordStore) GetByID(ctx context.Context, collection string, id int64) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[collection][id]
	if !ok {
		return domain.Record{}, fmt.Errorf("%s %d: %w", collection, id, domain.ErrRecordNotFound)
	}
	return cloneRecord(record), nil
}

func (s *RecordStore) GetByIDs(ctx context.Context, collection string, ids []int64) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Record{}
	for _, id := range ids {
		if record, ok := s.records[collection][id]; ok {
			out = append(out, cloneRecord(record))
		}
	}
	return out, nil
}

func (s *RecordStore) Create(ctx context.Context, collection string, values domain.Values) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	record := domain.NewRecord(collection, values)
	record.ID = s.nextID
	if s.records[collection] == nil {
		s.records[collection] = map[int64]domain.Record{}
	}
	s.records[collection][record.ID] = record
	s.writes++
	return cloneRecord(record), nil
}

func (s *RecordStore) Update(ctx context.Context, collection string, id int64, values domain.Values) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[collection][id]
	if !ok {
		return domain.Record{}, fmt.Errorf("%s %d: %w", collection, id, domain.ErrRecordNotFound)
	}
	record = record.WithValues(values)
	s.records[collection][id] = record
	s.writes++
	return cloneRecord(record), nil
}

func (s *RecordStore) Delete(ctx context.Context, collection string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[collection][id]; !ok {
		return fmt.Errorf("%s %d: %w", collection, id, domain.ErrRecordNotFound)
	}
	delete(s.records[collection], id)
	return nil
}

// Seed stores a record with the given values without counting it as a write.
func (s *RecordStore) Seed(collection string, values domain.Values) domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	record := domain.Record{
		ID:         s.nextID,
		Collection: collection,
		Values:     values.Clone(),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if s.records[collection] == nil {
		s.records[collection] = map[int64]domain.Record{}
	}
	s.records[collection][record.ID] = record
	return cloneRecord(record)
}

func cloneRecord(record domain.Record) domain.Record {
	record.Values = record.Values.Clone()
	return record
}
