package repository

import (
	"context"
	"time"

	"github.com/rpattn/entitysync/internal/domain"

	"github.com/google/uuid"
)

// RecordRepository is the local system of record. Collections are free-form
// names; values are stored as a JSON document per record.
type RecordRepository interface {
	// Search returns records of a collection matching every criterion. Inactive
	// records are excluded unless opts.IncludeInactive is set.
	Search(ctx context.Context, collection string, criteria []domain.Criterion, opts domain.SearchOptions) ([]domain.Record, error)
	GetByID(ctx context.Context, collection string, id int64) (domain.Record, error)
	GetByIDs(ctx context.Context, collection string, ids []int64) ([]domain.Record, error)
	Create(ctx context.Context, collection string, values domain.Values) (domain.Record, error)
	// Update merges values into the stored record.
	Update(ctx context.Context, collection string, id int64, values domain.Values) (domain.Record, error)
	Delete(ctx context.Context, collection string, id int64) error
}

// RetryRepository persists retry tracker entries keyed by message id.
type RetryRepository interface {
	// Increment creates the entry at 1 or adds one to it in a single atomic step.
	Increment(ctx context.Context, messageID, lastError, entityType string) (domain.RetryRecord, error)
	Get(ctx context.Context, messageID string) (domain.RetryRecord, error)
	// SetState updates the state of an existing entry. Missing entries are ignored.
	SetState(ctx context.Context, messageID string, state domain.RetryState) error
	DeleteSucceededBefore(ctx context.Context, cutoff time.Time) (int, error)
	Stats(ctx context.Context) (domain.RetryStats, error)
	List(ctx context.Context, state domain.RetryState, limit int) ([]domain.RetryRecord, error)
}

// DeadLetterRepository persists quarantined messages. MessageID is unique.
type DeadLetterRepository interface {
	// Upsert inserts the entry or updates the existing one with the same message id.
	Upsert(ctx context.Context, entry domain.DeadLetterEntry) (domain.DeadLetterEntry, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.DeadLetterEntry, error)
	GetByMessageID(ctx context.Context, messageID string) (domain.DeadLetterEntry, error)
	Update(ctx context.Context, entry domain.DeadLetterEntry) (domain.DeadLetterEntry, error)
	List(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error)
}
