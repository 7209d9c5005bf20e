package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/entitysync/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type deadLetterRepository struct {
	pool *pgxpool.Pool
}

// NewDeadLetterRepository wires a dead-letter store backed by pgxpool.
func NewDeadLetterRepository(pool *pgxpool.Pool) DeadLetterRepository {
	return &deadLetterRepository{pool: pool}
}

const deadLetterColumns = `id, message_id, raw_payload, entity_type, error_message, error_trace, retry_count, state,
	first_attempt_at, last_attempt_at, resolved_by, resolved_at, resolution_note, related_collection, related_record_id`

func (r *deadLetterRepository) Upsert(ctx context.Context, entry domain.DeadLetterEntry) (domain.DeadLetterEntry, error) {
	if r.pool == nil {
		return domain.DeadLetterEntry{}, fmt.Errorf("dead-letter repository not initialized")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO sync_dead_letters (id, message_id, raw_payload, entity_type, error_message, error_trace, retry_count, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (message_id) DO UPDATE SET
		   raw_payload = EXCLUDED.raw_payload,
		   entity_type = EXCLUDED.entity_type,
		   error_message = EXCLUDED.error_message,
		   error_trace = EXCLUDED.error_trace,
		   retry_count = EXCLUDED.retry_count,
		   state = EXCLUDED.state,
		   last_attempt_at = NOW()
		 RETURNING `+deadLetterColumns,
		entry.ID, entry.MessageID, entry.RawPayload, entry.EntityType, entry.ErrorMessage,
		entry.ErrorTrace, entry.RetryCount, string(entry.State))

	stored, err := scanDeadLetter(row)
	if err != nil {
		return domain.DeadLetterEntry{}, fmt.Errorf("failed to quarantine %s: %w", entry.MessageID, err)
	}
	return stored, nil
}

func (r *deadLetterRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.DeadLetterEntry, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *deadLetterRepository) GetByMessageID(ctx context.Context, messageID string) (domain.DeadLetterEntry, error) {
	return r.getOne(ctx, `message_id = $1`, messageID)
}

func (r *deadLetterRepository) getOne(ctx context.Context, where string, arg any) (domain.DeadLetterEntry, error) {
	if r.pool == nil {
		return domain.DeadLetterEntry{}, fmt.Errorf("dead-letter repository not initialized")
	}

	row := r.pool.QueryRow(ctx, `SELECT `+deadLetterColumns+` FROM sync_dead_letters WHERE `+where, arg)
	entry, err := scanDeadLetter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DeadLetterEntry{}, fmt.Errorf("dead letter %v: %w", arg, domain.ErrRecordNotFound)
		}
		return domain.DeadLetterEntry{}, fmt.Errorf("failed to get dead letter %v: %w", arg, err)
	}
	return entry, nil
}

func (r *deadLetterRepository) Update(ctx context.Context, entry domain.DeadLetterEntry) (domain.DeadLetterEntry, error) {
	if r.pool == nil {
		return domain.DeadLetterEntry{}, fmt.Errorf("dead-letter repository not initialized")
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE sync_dead_letters SET
		   error_message = $2,
		   retry_count = $3,
		   state = $4,
		   last_attempt_at = $5,
		   resolved_by = $6,
		   resolved_at = $7,
		   resolution_note = $8,
		   related_collection = $9,
		   related_record_id = $10
		 WHERE id = $1
		 RETURNING `+deadLetterColumns,
		entry.ID, entry.ErrorMessage, entry.RetryCount, string(entry.State), entry.LastAttemptAt,
		nullableText(entry.ResolvedBy), entry.ResolvedAt, nullableText(entry.ResolutionNote),
		nullableText(entry.RelatedCollection), entry.RelatedRecordID)

	stored, err := scanDeadLetter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DeadLetterEntry{}, fmt.Errorf("dead letter %s: %w", entry.ID, domain.ErrRecordNotFound)
		}
		return domain.DeadLetterEntry{}, fmt.Errorf("failed to update dead letter %s: %w", entry.ID, err)
	}
	return stored, nil
}

func (r *deadLetterRepository) List(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.DeadLetterEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("dead-letter repository not initialized")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+deadLetterColumns+` FROM sync_dead_letters
		 WHERE ($1 = '' OR state = $1)
		   AND ($2 = '' OR entity_type = $2)
		 ORDER BY last_attempt_at DESC
		 LIMIT $3`,
		string(filter.State), filter.EntityType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	entries := []domain.DeadLetterEntry{}
	for rows.Next() {
		entry, scanErr := scanDeadLetter(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate dead letters: %w", rowsErr)
	}
	return entries, nil
}

func scanDeadLetter(row pgx.Row) (domain.DeadLetterEntry, error) {
	var (
		entry             domain.DeadLetterEntry
		state             string
		entityType        pgtype.Text
		errorTrace        pgtype.Text
		first             pgtype.Timestamptz
		last              pgtype.Timestamptz
		resolvedBy        pgtype.Text
		resolvedAt        pgtype.Timestamptz
		resolutionNote    pgtype.Text
		relatedCollection pgtype.Text
		relatedRecordID   pgtype.Int8
	)
	if err := row.Scan(
		&entry.ID,
		&entry.MessageID,
		&entry.RawPayload,
		&entityType,
		&entry.ErrorMessage,
		&errorTrace,
		&entry.RetryCount,
		&state,
		&first,
		&last,
		&resolvedBy,
		&resolvedAt,
		&resolutionNote,
		&relatedCollection,
		&relatedRecordID,
	); err != nil {
		return domain.DeadLetterEntry{}, err
	}

	entry.State = domain.DeadLetterState(state)
	entry.EntityType = entityType.String
	entry.ErrorTrace = errorTrace.String
	entry.ResolvedBy = resolvedBy.String
	entry.ResolutionNote = resolutionNote.String
	entry.RelatedCollection = relatedCollection.String
	if first.Valid {
		entry.FirstAttemptAt = first.Time
	}
	if last.Valid {
		entry.LastAttemptAt = last.Time
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		entry.ResolvedAt = &at
	}
	if relatedRecordID.Valid {
		id := relatedRecordID.Int64
		entry.RelatedRecordID = &id
	}
	return entry, nil
}

func nullableText(value string) any {
	if value == "" {
		return nil
	}
	return value
}
