package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formlane/forms-api/internal/models"
)

const resultColumns = `result_id, form_id, instance_id, uid, submitted_at, approved, ip, token`

// ResultRepository manages persistence for submission results.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository constructs a ResultRepository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Create inserts a new result row, stamping time, IP and a fresh
// capability token.
func (r *ResultRepository) Create(ctx context.Context, result *models.Result) error {
	if result.Token == "" {
		result.Token = uuid.NewString()
	}
	if result.SubmittedAt.IsZero() {
		result.SubmittedAt = time.Now().UTC()
	}

	const query = `INSERT INTO results (form_id, instance_id, uid, submitted_at, approved, ip, token)
		VALUES (:form_id, :instance_id, :uid, :submitted_at, :approved, :ip, :token)
		RETURNING result_id`
	rows, err := r.db.NamedQueryContext(ctx, query, result)
	if err != nil {
		return fmt.Errorf("create result: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	if rows.Next() {
		if err := rows.Scan(&result.ID); err != nil {
			return fmt.Errorf("scan result id: %w", err)
		}
	}
	return nil
}

// CreateIfAbsent creates a result only when the (form, user) pair has none
// yet. An advisory lock on the pair serializes concurrent first
// submissions; row locks cannot close that race because there is no row to
// lock until one of them commits. It returns the existing result and false
// when one was already there.
func (r *ResultRepository) CreateIfAbsent(ctx context.Context, result *models.Result) (*models.Result, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin create result: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended($1 || '/' || $2, 0))",
		result.FormID, result.UID); err != nil {
		return nil, false, fmt.Errorf("lock result slot: %w", err)
	}

	var existing models.Result
	err = tx.GetContext(ctx, &existing,
		fmt.Sprintf("SELECT %s FROM results WHERE form_id = $1 AND uid = $2 ORDER BY result_id ASC LIMIT 1", resultColumns),
		result.FormID, result.UID)
	if err == nil {
		return &existing, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("check existing result: %w", err)
	}

	if result.Token == "" {
		result.Token = uuid.NewString()
	}
	if result.SubmittedAt.IsZero() {
		result.SubmittedAt = time.Now().UTC()
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO results (form_id, instance_id, uid, submitted_at, approved, ip, token)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING result_id`,
		result.FormID, result.InstanceID, result.UID, result.SubmittedAt, result.Approved, result.IP, result.Token,
	).Scan(&result.ID)
	if err != nil {
		return nil, false, fmt.Errorf("insert result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit create result: %w", err)
	}
	return result, true, nil
}

// FindByID fetches one result row.
func (r *ResultRepository) FindByID(ctx context.Context, id int64) (*models.Result, error) {
	query := fmt.Sprintf("SELECT %s FROM results WHERE result_id = $1", resultColumns)
	var result models.Result
	if err := r.db.GetContext(ctx, &result, query, id); err != nil {
		return nil, err
	}
	return &result, nil
}

// FindByFormAndUser locates the (by convention at most one) existing
// submission of a user on a form, optionally also matching a token.
// Returns 0 when none exists.
func (r *ResultRepository) FindByFormAndUser(ctx context.Context, formID, uid, token string) (int64, error) {
	query := "SELECT result_id FROM results WHERE form_id = $1 AND uid = $2"
	args := []interface{}{formID, uid}
	if token != "" {
		query += " AND token = $3"
		args = append(args, token)
	}
	query += " ORDER BY result_id ASC LIMIT 1"

	var id int64
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("find result: %w", err)
	}
	return id, nil
}

// List returns results matching filters along with total count.
func (r *ResultRepository) List(ctx context.Context, filter models.ResultFilter) ([]models.Result, int, error) {
	base := "FROM results WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.FormID != "" {
		conditions = append(conditions, fmt.Sprintf("form_id = $%d", len(args)+1))
		args = append(args, filter.FormID)
	}
	if filter.UID != "" {
		conditions = append(conditions, fmt.Sprintf("uid = $%d", len(args)+1))
		args = append(args, filter.UID)
	}
	if filter.InstanceID != "" {
		conditions = append(conditions, fmt.Sprintf("instance_id = $%d", len(args)+1))
		args = append(args, filter.InstanceID)
	}
	if filter.Approved != nil {
		conditions = append(conditions, fmt.Sprintf("approved = $%d", len(args)+1))
		args = append(args, *filter.Approved)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	column := "submitted_at"
	if filter.SortBy == "result_id" {
		column = "result_id"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", resultColumns, base, column, order, size, offset)
	var results []models.Result
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	return results, total, nil
}

// CountByFormAndUser counts a user's submissions on one form.
func (r *ResultRepository) CountByFormAndUser(ctx context.Context, formID, uid string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM results WHERE form_id = $1 AND uid = $2", formID, uid); err != nil {
		return 0, fmt.Errorf("count user results: %w", err)
	}
	return count, nil
}

// Approve clears a moderated result's pending state.
func (r *ResultRepository) Approve(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE results SET approved = TRUE WHERE result_id = $1", id); err != nil {
		return fmt.Errorf("approve result: %w", err)
	}
	return nil
}

// Touch refreshes the submission timestamp and IP of an edited result.
func (r *ResultRepository) Touch(ctx context.Context, id int64, ip string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE results SET submitted_at = $2, ip = $3 WHERE result_id = $1", id, time.Now().UTC(), ip); err != nil {
		return fmt.Errorf("touch result: %w", err)
	}
	return nil
}

// Delete removes a result and its values in one transaction.
func (r *ResultRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete result: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM field_values WHERE result_id = $1", id); err != nil {
		return fmt.Errorf("delete result values: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM results WHERE result_id = $1", id); err != nil {
		return fmt.Errorf("delete result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete result: %w", err)
	}
	return nil
}
