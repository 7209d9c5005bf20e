package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/entitysync/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type retryRepository struct {
	pool *pgxpool.Pool
}

// NewRetryRepository wires a retry tracker store backed by pgxpool.
func NewRetryRepository(pool *pgxpool.Pool) RetryRepository {
	return &retryRepository{pool: pool}
}

const retryColumns = `message_id, retry_count, last_error, entity_type, state, first_attempt_at, last_attempt_at`

func (r *retryRepository) Increment(ctx context.Context, messageID, lastError, entityType string) (domain.RetryRecord, error) {
	if r.pool == nil {
		return domain.RetryRecord{}, fmt.Errorf("retry repository not initialized")
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO sync_retries (message_id, retry_count, last_error, entity_type, state)
		 VALUES ($1, 1, $2, $3, 'retrying')
		 ON CONFLICT (message_id) DO UPDATE SET
		   retry_count = sync_retries.retry_count + 1,
		   last_error = EXCLUDED.last_error,
		   entity_type = COALESCE(NULLIF(EXCLUDED.entity_type, ''), sync_retries.entity_type),
		   last_attempt_at = NOW()
		 RETURNING `+retryColumns,
		messageID, lastError, entityType)

	record, err := scanRetry(row)
	if err != nil {
		return domain.RetryRecord{}, fmt.Errorf("failed to increment retry for %s: %w", messageID, err)
	}
	return record, nil
}

func (r *retryRepository) Get(ctx context.Context, messageID string) (domain.RetryRecord, error) {
	if r.pool == nil {
		return domain.RetryRecord{}, fmt.Errorf("retry repository not initialized")
	}

	row := r.pool.QueryRow(ctx, `SELECT `+retryColumns+` FROM sync_retries WHERE message_id = $1`, messageID)
	record, err := scanRetry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RetryRecord{}, fmt.Errorf("retry %s: %w", messageID, domain.ErrRecordNotFound)
		}
		return domain.RetryRecord{}, fmt.Errorf("failed to get retry %s: %w", messageID, err)
	}
	return record, nil
}

func (r *retryRepository) SetState(ctx context.Context, messageID string, state domain.RetryState) error {
	if r.pool == nil {
		return fmt.Errorf("retry repository not initialized")
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE sync_retries SET state = $2, last_attempt_at = NOW() WHERE message_id = $1`,
		messageID, string(state))
	if err != nil {
		return fmt.Errorf("failed to set retry state for %s: %w", messageID, err)
	}
	return nil
}

func (r *retryRepository) DeleteSucceededBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("retry repository not initialized")
	}

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM sync_retries WHERE state = 'success' AND last_attempt_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete succeeded retries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *retryRepository) Stats(ctx context.Context) (domain.RetryStats, error) {
	if r.pool == nil {
		return domain.RetryStats{}, fmt.Errorf("retry repository not initialized")
	}

	var stats domain.RetryStats
	err := r.pool.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE state = 'retrying'),
		   COUNT(*) FILTER (WHERE state = 'moved_to_dlq'),
		   COUNT(*) FILTER (WHERE state = 'success' AND retry_count > 0)
		 FROM sync_retries`,
	).Scan(&stats.TotalRetrying, &stats.TotalMovedToDLQ, &stats.TotalSuccessWithRetries)
	if err != nil {
		return domain.RetryStats{}, fmt.Errorf("failed to compute retry stats: %w", err)
	}
	return stats, nil
}

func (r *retryRepository) List(ctx context.Context, state domain.RetryState, limit int) ([]domain.RetryRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("retry repository not initialized")
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+retryColumns+` FROM sync_retries
		 WHERE ($1 = '' OR state = $1)
		 ORDER BY last_attempt_at DESC
		 LIMIT $2`,
		string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retries: %w", err)
	}
	defer rows.Close()

	records := []domain.RetryRecord{}
	for rows.Next() {
		record, scanErr := scanRetry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan retry: %w", scanErr)
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate retries: %w", rowsErr)
	}
	return records, nil
}

func scanRetry(row pgx.Row) (domain.RetryRecord, error) {
	var (
		record    domain.RetryRecord
		state     string
		lastError pgtype.Text
		entity    pgtype.Text
		first     pgtype.Timestamptz
		last      pgtype.Timestamptz
	)
	if err := row.Scan(&record.MessageID, &record.RetryCount, &lastError, &entity, &state, &first, &last); err != nil {
		return domain.RetryRecord{}, err
	}
	record.State = domain.RetryState(state)
	record.LastError = lastError.String
	record.EntityType = entity.String
	if first.Valid {
		record.FirstAttemptAt = first.Time
	}
	if last.Valid {
		record.LastAttemptAt = last.Time
	}
	return record, nil
}
