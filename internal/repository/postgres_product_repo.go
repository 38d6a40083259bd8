package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/techshop/internal/model"
)

// PostgresProductRepo はPostgreSQLを使用した商品リポジトリ。
type PostgresProductRepo struct {
	db *sql.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sql.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

const productColumns = `id, name, description, price, image, category, stock, is_new`

func scanProduct(row rowScanner) (*model.Product, error) {
	p := &model.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &p.Category, &p.Stock, &p.IsNew)
	return p, err
}

// List は全商品をID昇順で返す。
func (r *PostgresProductRepo) List(ctx context.Context) ([]*model.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
func (r *PostgresProductRepo) FindByID(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return p, nil
}

// Count は商品数を返す。
func (r *PostgresProductRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// Create は商品を作成する。
func (r *PostgresProductRepo) Create(ctx context.Context, p *model.Product) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		p.ID, p.Name, p.Description, p.Price, p.Image, p.Category, p.Stock, p.IsNew, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// Update は商品を上書き更新する。見つからない場合はfalseを返す。
func (r *PostgresProductRepo) Update(ctx context.Context, p *model.Product) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products
		 SET name = $2, description = $3, price = $4, image = $5, category = $6,
		     stock = $7, is_new = $8, updated_at = now()
		 WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Price, p.Image, p.Category, p.Stock, p.IsNew,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update product: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete は指定IDの商品を削除する。見つからない場合はfalseを返す。
// カート・注文内のスナップショットには影響しない。
func (r *PostgresProductRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Upsert は商品をID単位で一括登録・更新する。
// 全件を単一トランザクションで処理し、途中で失敗した場合は何も反映しない。
func (r *PostgresProductRepo) Upsert(ctx context.Context, products []*model.Product) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO products (`+productColumns+`, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, description = EXCLUDED.description, price = EXCLUDED.price,
		     image = EXCLUDED.image, category = EXCLUDED.category, stock = EXCLUDED.stock,
		     is_new = EXCLUDED.is_new, updated_at = now()`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare product upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Name, p.Description, p.Price, p.Image, p.Category, p.Stock, p.IsNew,
		); err != nil {
			return fmt.Errorf("failed to upsert product %d: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product upsert: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProductRepository = (*PostgresProductRepo)(nil)
