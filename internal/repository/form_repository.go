package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/formlane/forms-api/internal/models"
)

const formColumns = `form_id, category_id, form_name, introtext, submit_msg, noaccess_msg, noedit_msg, max_submit_msg,
	owner_id, group_id, fill_gid, results_gid, enabled, req_approval, onetime, max_submit,
	onsubmit, email, redirect, captcha, inblock, sub_type, created_at, updated_at`

// FormRepository manages persistence for form definitions.
type FormRepository struct {
	db *sqlx.DB
}

// NewFormRepository constructs a FormRepository.
func NewFormRepository(db *sqlx.DB) *FormRepository {
	return &FormRepository{db: db}
}

// List returns forms matching filters along with total count.
func (r *FormRepository) List(ctx context.Context, filter models.FormFilter) ([]models.Form, int, error) {
	base := "FROM forms WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.CategoryID != nil {
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)+1))
		args = append(args, *filter.CategoryID)
	}
	if filter.Enabled != nil {
		conditions = append(conditions, fmt.Sprintf("enabled = $%d", len(args)+1))
		args = append(args, *filter.Enabled)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(form_name) LIKE $%d OR LOWER(form_id) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"form_name":  "form_name",
		"form_id":    "form_id",
		"created_at": "created_at",
		"updated_at": "updated_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "form_name"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", formColumns, base, column, order, size, offset)
	var forms []models.Form
	if err := r.db.SelectContext(ctx, &forms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list forms: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count forms: %w", err)
	}

	return forms, total, nil
}

// FindByID fetches a form definition by ID.
func (r *FormRepository) FindByID(ctx context.Context, id string) (*models.Form, error) {
	query := fmt.Sprintf("SELECT %s FROM forms WHERE form_id = $1", formColumns)
	var form models.Form
	if err := r.db.GetContext(ctx, &form, query, id); err != nil {
		return nil, err
	}
	return &form, nil
}

// ExistsByID checks whether a form ID is already taken.
func (r *FormRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM forms WHERE form_id = $1 LIMIT 1", id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check form id: %w", err)
	}
	return true, nil
}

// Create inserts a new form definition.
func (r *FormRepository) Create(ctx context.Context, form *models.Form) error {
	now := time.Now().UTC()
	if form.CreatedAt.IsZero() {
		form.CreatedAt = now
	}
	form.UpdatedAt = now

	const query = `INSERT INTO forms (form_id, category_id, form_name, introtext, submit_msg, noaccess_msg, noedit_msg, max_submit_msg,
		owner_id, group_id, fill_gid, results_gid, enabled, req_approval, onetime, max_submit,
		onsubmit, email, redirect, captcha, inblock, sub_type, created_at, updated_at)
		VALUES (:form_id, :category_id, :form_name, :introtext, :submit_msg, :noaccess_msg, :noedit_msg, :max_submit_msg,
		:owner_id, :group_id, :fill_gid, :results_gid, :enabled, :req_approval, :onetime, :max_submit,
		:onsubmit, :email, :redirect, :captcha, :inblock, :sub_type, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, form); err != nil {
		return fmt.Errorf("create form: %w", err)
	}
	return nil
}

// Update modifies an existing form definition.
func (r *FormRepository) Update(ctx context.Context, form *models.Form) error {
	form.UpdatedAt = time.Now().UTC()
	const query = `UPDATE forms SET category_id = :category_id, form_name = :form_name, introtext = :introtext,
		submit_msg = :submit_msg, noaccess_msg = :noaccess_msg, noedit_msg = :noedit_msg, max_submit_msg = :max_submit_msg,
		owner_id = :owner_id, group_id = :group_id, fill_gid = :fill_gid, results_gid = :results_gid,
		enabled = :enabled, req_approval = :req_approval, onetime = :onetime, max_submit = :max_submit,
		onsubmit = :onsubmit, email = :email, redirect = :redirect, captcha = :captcha, inblock = :inblock,
		sub_type = :sub_type, updated_at = :updated_at WHERE form_id = :form_id`
	if _, err := r.db.NamedExecContext(ctx, query, form); err != nil {
		return fmt.Errorf("update form: %w", err)
	}
	return nil
}

// Rename changes a form's ID, cascading the change to dependent field and
// result rows in one transaction.
func (r *FormRepository) Rename(ctx context.Context, oldID, newID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rename: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "UPDATE forms SET form_id = $2 WHERE form_id = $1", oldID, newID); err != nil {
		return fmt.Errorf("rename form: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE fields SET form_id = $2 WHERE form_id = $1", oldID, newID); err != nil {
		return fmt.Errorf("rename form fields: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE results SET form_id = $2 WHERE form_id = $1", oldID, newID); err != nil {
		return fmt.Errorf("rename form results: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rename: %w", err)
	}
	return nil
}

// ResetChildPermissions overwrites the fill and results groups of every
// field on the form with the form's own groups, in one bulk update.
func (r *FormRepository) ResetChildPermissions(ctx context.Context, formID string, fillGID, resultsGID int64) error {
	const query = `UPDATE fields SET fill_gid = $2, results_gid = $3 WHERE form_id = $1`
	if _, err := r.db.ExecContext(ctx, query, formID, fillGID, resultsGID); err != nil {
		return fmt.Errorf("reset field permissions: %w", err)
	}
	return nil
}

// Delete removes the form and cascades to its fields, results and values
// inside a single transaction so partial cascades cannot occur.
func (r *FormRepository) Delete(ctx context.Context, formID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete form: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM field_values WHERE result_id IN (SELECT result_id FROM results WHERE form_id = $1)", formID); err != nil {
		return fmt.Errorf("delete form values: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM results WHERE form_id = $1", formID); err != nil {
		return fmt.Errorf("delete form results: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM fields WHERE form_id = $1", formID); err != nil {
		return fmt.Errorf("delete form fields: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM forms WHERE form_id = $1", formID); err != nil {
		return fmt.Errorf("delete form: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete form: %w", err)
	}
	return nil
}
