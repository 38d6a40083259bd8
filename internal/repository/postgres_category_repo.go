package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/techshop/internal/model"
)

// PostgresCategoryRepo はPostgreSQLを使用したカテゴリリポジトリ。
type PostgresCategoryRepo struct {
	db *sql.DB
}

// NewPostgresCategoryRepo はPostgresCategoryRepoを生成する。
func NewPostgresCategoryRepo(db *sql.DB) *PostgresCategoryRepo {
	return &PostgresCategoryRepo{db: db}
}

const categoryColumns = `id, name, description, icon, color, active, discount_percent`

func scanCategory(row rowScanner) (*model.Category, error) {
	c := &model.Category{}
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Icon, &c.Color, &c.Active, &c.DiscountPercent)
	return c, err
}

// List は全カテゴリをID昇順で返す。
func (r *PostgresCategoryRepo) List(ctx context.Context) ([]*model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindByID(ctx context.Context, id int64) (*model.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	return c, nil
}

// Create はカテゴリを作成する。
func (r *PostgresCategoryRepo) Create(ctx context.Context, c *model.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (`+categoryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Description, c.Icon, c.Color, c.Active, c.DiscountPercent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

// Update はカテゴリを上書き更新する。見つからない場合はfalseを返す。
func (r *PostgresCategoryRepo) Update(ctx context.Context, c *model.Category) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE categories
		 SET name = $2, description = $3, icon = $4, color = $5, active = $6,
		     discount_percent = $7, updated_at = now()
		 WHERE id = $1`,
		c.ID, c.Name, c.Description, c.Icon, c.Color, c.Active, c.DiscountPercent,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update category: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete は指定IDのカテゴリを削除する。見つからない場合はfalseを返す。
func (r *PostgresCategoryRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete category: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Upsert はカテゴリをID単位で一括登録・更新する。
func (r *PostgresCategoryRepo) Upsert(ctx context.Context, categories []*model.Category) error {
	if len(categories) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (`+categoryColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE
			 SET name = EXCLUDED.name, description = EXCLUDED.description, icon = EXCLUDED.icon,
			     color = EXCLUDED.color, active = EXCLUDED.active,
			     discount_percent = EXCLUDED.discount_percent, updated_at = now()`,
			c.ID, c.Name, c.Description, c.Icon, c.Color, c.Active, c.DiscountPercent,
		); err != nil {
			return fmt.Errorf("failed to upsert category %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit category upsert: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CategoryRepository = (*PostgresCategoryRepo)(nil)
