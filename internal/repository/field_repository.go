package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/formlane/forms-api/internal/models"
)

const fieldColumns = `field_id, form_id, field_name, type, enabled, access, prompt, options, orderby, help_msg, fill_gid, results_gid`

// sortStep is the gap between consecutive field sort keys; the gaps leave
// room for inserting a field between two others before renormalizing.
const sortStep = 10

// FieldRepository manages persistence for field definitions.
type FieldRepository struct {
	db *sqlx.DB
}

// NewFieldRepository constructs a FieldRepository.
func NewFieldRepository(db *sqlx.DB) *FieldRepository {
	return &FieldRepository{db: db}
}

// ListByForm returns every field of a form in sort-key order.
func (r *FieldRepository) ListByForm(ctx context.Context, formID string) ([]models.FieldDef, error) {
	query := fmt.Sprintf("SELECT %s FROM fields WHERE form_id = $1 ORDER BY orderby ASC, field_id ASC", fieldColumns)
	var defs []models.FieldDef
	if err := r.db.SelectContext(ctx, &defs, query, formID); err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	return defs, nil
}

// ListByIDs returns the given field definitions, sort-key ordered.
func (r *FieldRepository) ListByIDs(ctx context.Context, ids []int64) ([]models.FieldDef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM fields WHERE field_id IN (?) ORDER BY orderby ASC", fieldColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("build fields query: %w", err)
	}
	query = r.db.Rebind(query)
	var defs []models.FieldDef
	if err := r.db.SelectContext(ctx, &defs, query, args...); err != nil {
		return nil, fmt.Errorf("list fields by id: %w", err)
	}
	return defs, nil
}

// FindByID fetches one field definition.
func (r *FieldRepository) FindByID(ctx context.Context, id int64) (*models.FieldDef, error) {
	query := fmt.Sprintf("SELECT %s FROM fields WHERE field_id = $1", fieldColumns)
	var def models.FieldDef
	if err := r.db.GetContext(ctx, &def, query, id); err != nil {
		return nil, err
	}
	return &def, nil
}

// ExistsByName checks for a duplicate field name within a form.
func (r *FieldRepository) ExistsByName(ctx context.Context, formID, name string, excludeID int64) (bool, error) {
	query := "SELECT 1 FROM fields WHERE form_id = $1 AND field_name = $2"
	args := []interface{}{formID, name}
	if excludeID > 0 {
		query += " AND field_id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check field name: %w", err)
	}
	return true, nil
}

// Create inserts a field definition, placing it after the form's current
// last field when no sort key was assigned.
func (r *FieldRepository) Create(ctx context.Context, def *models.FieldDef) error {
	if def.SortKey <= 0 {
		var max sql.NullInt64
		if err := r.db.GetContext(ctx, &max, "SELECT MAX(orderby) FROM fields WHERE form_id = $1", def.FormID); err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("next field sort key: %w", err)
		}
		def.SortKey = int(max.Int64) + sortStep
	}

	const query = `INSERT INTO fields (form_id, field_name, type, enabled, access, prompt, options, orderby, help_msg, fill_gid, results_gid)
		VALUES (:form_id, :field_name, :type, :enabled, :access, :prompt, :options, :orderby, :help_msg, :fill_gid, :results_gid)
		RETURNING field_id`
	rows, err := r.db.NamedQueryContext(ctx, query, def)
	if err != nil {
		return fmt.Errorf("create field: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	if rows.Next() {
		if err := rows.Scan(&def.ID); err != nil {
			return fmt.Errorf("scan field id: %w", err)
		}
	}
	return nil
}

// Update modifies an existing field definition.
func (r *FieldRepository) Update(ctx context.Context, def *models.FieldDef) error {
	const query = `UPDATE fields SET field_name = :field_name, type = :type, enabled = :enabled, access = :access,
		prompt = :prompt, options = :options, orderby = :orderby, help_msg = :help_msg,
		fill_gid = :fill_gid, results_gid = :results_gid WHERE field_id = :field_id`
	if _, err := r.db.NamedExecContext(ctx, query, def); err != nil {
		return fmt.Errorf("update field: %w", err)
	}
	return nil
}

// Move nudges a field above or below its neighbour by shifting its sort key
// past the neighbouring key, then renormalizes the whole form.
func (r *FieldRepository) Move(ctx context.Context, formID string, fieldID int64, direction string) error {
	var shift int
	switch direction {
	case "up":
		shift = -(sortStep + 1)
	case "down":
		shift = sortStep + 1
	default:
		return fmt.Errorf("move field: unknown direction %q", direction)
	}

	if _, err := r.db.ExecContext(ctx, "UPDATE fields SET orderby = orderby + $3 WHERE form_id = $1 AND field_id = $2", formID, fieldID, shift); err != nil {
		return fmt.Errorf("move field: %w", err)
	}
	return r.Reorder(ctx, formID)
}

// Reorder rewrites the form's sort keys as a strictly increasing sequence
// with step 10 starting at 10.
func (r *FieldRepository) Reorder(ctx context.Context, formID string) error {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, "SELECT field_id FROM fields WHERE form_id = $1 ORDER BY orderby ASC, field_id ASC", formID); err != nil {
		return fmt.Errorf("reorder fields: %w", err)
	}

	key := sortStep
	for _, id := range ids {
		if _, err := r.db.ExecContext(ctx, "UPDATE fields SET orderby = $2 WHERE field_id = $1", id, key); err != nil {
			return fmt.Errorf("reorder field %d: %w", id, err)
		}
		key += sortStep
	}
	return nil
}

// Delete removes a field definition and purges its stored values.
func (r *FieldRepository) Delete(ctx context.Context, fieldID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete field: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM field_values WHERE field_id = $1", fieldID); err != nil {
		return fmt.Errorf("delete field values: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM fields WHERE field_id = $1", fieldID); err != nil {
		return fmt.Errorf("delete field: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete field: %w", err)
	}
	return nil
}

// CopyToForm duplicates every field of src onto dst, preserving order.
func (r *FieldRepository) CopyToForm(ctx context.Context, srcFormID, dstFormID string) error {
	defs, err := r.ListByForm(ctx, srcFormID)
	if err != nil {
		return err
	}
	for i := range defs {
		def := defs[i]
		def.ID = 0
		def.FormID = dstFormID
		if err := r.Create(ctx, &def); err != nil {
			return fmt.Errorf("copy field %s: %w", strings.TrimSpace(def.Name), err)
		}
	}
	return nil
}
