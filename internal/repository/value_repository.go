package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/formlane/forms-api/internal/models"
)

// ValueRepository manages the per-field stored values of results.
type ValueRepository struct {
	db *sqlx.DB
}

// NewValueRepository constructs a ValueRepository.
func NewValueRepository(db *sqlx.DB) *ValueRepository {
	return &ValueRepository{db: db}
}

// Upsert writes one value row. The unique constraint on
// (result_id, field_id) makes concurrent saves converge on one row.
func (r *ValueRepository) Upsert(ctx context.Context, resultID, fieldID int64, value string) error {
	const query = `INSERT INTO field_values (result_id, field_id, value) VALUES ($1, $2, $3)
		ON CONFLICT (result_id, field_id) DO UPDATE SET value = EXCLUDED.value`
	if _, err := r.db.ExecContext(ctx, query, resultID, fieldID, value); err != nil {
		return fmt.Errorf("upsert value: %w", err)
	}
	return nil
}

// GetByResult returns every stored value of one result.
func (r *ValueRepository) GetByResult(ctx context.Context, resultID int64) ([]models.Value, error) {
	const query = `SELECT value_id, result_id, field_id, value FROM field_values WHERE result_id = $1`
	var values []models.Value
	if err := r.db.SelectContext(ctx, &values, query, resultID); err != nil {
		return nil, fmt.Errorf("get result values: %w", err)
	}
	return values, nil
}

// MapByResult returns the result's values keyed by field ID.
func (r *ValueRepository) MapByResult(ctx context.Context, resultID int64) (map[int64]string, error) {
	values, err := r.GetByResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(values))
	for _, v := range values {
		out[v.FieldID] = v.Value
	}
	return out, nil
}

// DeleteByResult purges every value of a result.
func (r *ValueRepository) DeleteByResult(ctx context.Context, resultID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM field_values WHERE result_id = $1", resultID); err != nil {
		return fmt.Errorf("delete result values: %w", err)
	}
	return nil
}

// DeleteByField purges every stored value of a field.
func (r *ValueRepository) DeleteByField(ctx context.Context, fieldID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM field_values WHERE field_id = $1", fieldID); err != nil {
		return fmt.Errorf("delete field values: %w", err)
	}
	return nil
}
