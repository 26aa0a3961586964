package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/formlane/forms-api/internal/models"
)

// CategoryRepository manages persistence for form categories.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository constructs a CategoryRepository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// GetAll returns every category ordered by name.
func (r *CategoryRepository) GetAll(ctx context.Context) ([]models.Category, error) {
	const query = `SELECT cat_id, cat_name, email_uid, email_gid FROM categories ORDER BY cat_name ASC`
	var cats []models.Category
	if err := r.db.SelectContext(ctx, &cats, query); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// FindByID fetches one category.
func (r *CategoryRepository) FindByID(ctx context.Context, id int64) (*models.Category, error) {
	const query = `SELECT cat_id, cat_name, email_uid, email_gid FROM categories WHERE cat_id = $1`
	var cat models.Category
	if err := r.db.GetContext(ctx, &cat, query, id); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Create inserts a category.
func (r *CategoryRepository) Create(ctx context.Context, cat *models.Category) error {
	const query = `INSERT INTO categories (cat_name, email_uid, email_gid) VALUES ($1, $2, $3) RETURNING cat_id`
	if err := r.db.QueryRowContext(ctx, query, cat.Name, cat.NotifyUID, cat.NotifyGID).Scan(&cat.ID); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// Update modifies a category.
func (r *CategoryRepository) Update(ctx context.Context, cat *models.Category) error {
	const query = `UPDATE categories SET cat_name = $2, email_uid = $3, email_gid = $4 WHERE cat_id = $1`
	if _, err := r.db.ExecContext(ctx, query, cat.ID, cat.Name, cat.NotifyUID, cat.NotifyGID); err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// Delete removes a category row.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM categories WHERE cat_id = $1", id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// IsUsed reports whether any form still references the category.
func (r *CategoryRepository) IsUsed(ctx context.Context, id int64) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM forms WHERE category_id = $1 LIMIT 1", id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check category usage: %w", err)
	}
	return true, nil
}
