package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type recordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository wires a record store backed by pgxpool.
func NewRecordRepository(pool *pgxpool.Pool) RecordRepository {
	return &recordRepository{pool: pool}
}

const recordColumns = `id, collection, data, created_at, updated_at`

func (r *recordRepository) Search(ctx context.Context, collection string, criteria []domain.Criterion, opts domain.SearchOptions) ([]domain.Record, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("record repository not initialized")
	}

	where, args := buildRecordWhere(collection, criteria, opts)
	query := `SELECT ` + recordColumns + ` FROM records WHERE ` + where + ` ORDER BY id`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// buildRecordWhere renders criteria against the JSONB document. A nil value
// matches unset, null, empty and false.
func buildRecordWhere(collection string, criteria []domain.Criterion, opts domain.SearchOptions) (string, []any) {
	args := []any{collection}
	clauses := []string{"collection = $1"}

	for _, criterion := range criteria {
		args = append(args, criterion.Field)
		fieldRef := fmt.Sprintf("data->>$%d", len(args))

		if criterion.Value == nil {
			clauses = append(clauses, fmt.Sprintf("(%s IS NULL OR %s IN ('', 'false'))", fieldRef, fieldRef))
			continue
		}

		args = append(args, domain.AsString(criterion.Value))
		switch criterion.Op {
		case domain.OpIEq:
			clauses = append(clauses, fmt.Sprintf("lower(%s) = lower($%d)", fieldRef, len(args)))
		case domain.OpILike:
			clauses = append(clauses, fmt.Sprintf("%s ILIKE '%%' || $%d || '%%'", fieldRef, len(args)))
		default:
			clauses = append(clauses, fmt.Sprintf("%s = $%d", fieldRef, len(args)))
		}
	}

	if !opts.IncludeInactive {
		clauses = append(clauses, "COALESCE(data->>'active', 'true') <> 'false'")
	}

	return strings.Join(clauses, " AND "), args
}

func (r *recordRepository) GetByID(ctx context.Context, collection string, id int64) (domain.Record, error) {
	if r.pool == nil {
		return domain.Record{}, fmt.Errorf("record repository not initialized")
	}

	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE collection = $1 AND id = $2`, collection, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, fmt.Errorf("%s %d: %w", collection, id, domain.ErrRecordNotFound)
		}
		return domain.Record{}, fmt.Errorf("failed to get %s %d: %w", collection, id, err)
	}
	return record, nil
}

func (r *recordRepository) GetByIDs(ctx context.Context, collection string, ids []int64) ([]domain.Record, error) {
	if len(ids) == 0 {
		return []domain.Record{}, nil
	}
	if r.pool == nil {
		return nil, fmt.Errorf("record repository not initialized")
	}

	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM records WHERE collection = $1 AND id = ANY($2) ORDER BY id`, collection, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s by ids: %w", collection, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *recordRepository) Create(ctx context.Context, collection string, values domain.Values) (domain.Record, error) {
	if r.pool == nil {
		return domain.Record{}, fmt.Errorf("record repository not initialized")
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to marshal values: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO records (collection, data) VALUES ($1, $2::jsonb) RETURNING `+recordColumns,
		collection, payload)
	record, err := scanRecord(row)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to create %s: %w", collection, err)
	}
	return record, nil
}

func (r *recordRepository) Update(ctx context.Context, collection string, id int64, values domain.Values) (domain.Record, error) {
	if r.pool == nil {
		return domain.Record{}, fmt.Errorf("record repository not initialized")
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to marshal values: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE records SET data = data || $3::jsonb, updated_at = NOW()
		 WHERE collection = $1 AND id = $2
		 RETURNING `+recordColumns,
		collection, id, payload)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, fmt.Errorf("%s %d: %w", collection, id, domain.ErrRecordNotFound)
		}
		return domain.Record{}, fmt.Errorf("failed to update %s %d: %w", collection, id, err)
	}
	return record, nil
}

func (r *recordRepository) Delete(ctx context.Context, collection string, id int64) error {
	if r.pool == nil {
		return fmt.Errorf("record repository not initialized")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM records WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", collection, id, domain.ErrRecordNotFound)
	}
	return nil
}

func scanRecords(rows pgx.Rows) ([]domain.Record, error) {
	records := []domain.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", rowsErr)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var (
		record    domain.Record
		data      []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&record.ID, &record.Collection, &data, &createdAt, &updatedAt); err != nil {
		return domain.Record{}, err
	}

	record.Values = domain.Values{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &record.Values); err != nil {
			return domain.Record{}, fmt.Errorf("failed to unmarshal record data: %w", err)
		}
	}
	if createdAt.Valid {
		record.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		record.UpdatedAt = updatedAt.Time
	}
	return record, nil
}
