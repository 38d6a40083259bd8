package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/techshop/internal/model"
)

// PostgresCartRepo はPostgreSQLを使用したカートリポジトリ。
type PostgresCartRepo struct {
	db *sql.DB
}

// NewPostgresCartRepo はPostgresCartRepoを生成する。
func NewPostgresCartRepo(db *sql.DB) *PostgresCartRepo {
	return &PostgresCartRepo{db: db}
}

const cartItemColumns = `product_id, name, price, original_price, image, quantity, discount_percent, added_at`

func scanCartItem(row rowScanner) (model.CartItem, error) {
	var item model.CartItem
	err := row.Scan(
		&item.ProductID, &item.Name, &item.Price, &item.OriginalPrice,
		&item.Image, &item.Quantity, &item.DiscountPercent, &item.AddedAt,
	)
	return item, err
}

// ListByUserID はユーザーのカート内容を追加順に返す。
func (r *PostgresCartRepo) ListByUserID(ctx context.Context, userID string) ([]model.CartItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cartItemColumns+`
		 FROM cart_items
		 WHERE user_id = $1
		 ORDER BY added_at ASC, product_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	return collectCartItems(rows)
}

func collectCartItems(rows *sql.Rows) ([]model.CartItem, error) {
	items := []model.CartItem{}
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cart items: %w", err)
	}
	return items, nil
}

// AddOrIncrement は商品が未登録なら数量1で追加し、登録済みなら数量を1増やす。
// 競合時は数量のみ更新し、追加時点の価格・割引率・名前は維持する。
func (r *PostgresCartRepo) AddOrIncrement(ctx context.Context, userID string, item model.CartItem) (*model.CartItem, error) {
	result, err := scanCartItem(r.db.QueryRowContext(ctx,
		`INSERT INTO cart_items (user_id, `+cartItemColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, 1, $7, now())
		 ON CONFLICT (user_id, product_id) DO UPDATE
		 SET quantity = cart_items.quantity + 1
		 RETURNING `+cartItemColumns,
		userID, item.ProductID, item.Name, item.Price, item.OriginalPrice, item.Image, item.DiscountPercent,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	return &result, nil
}

// SetQuantity は数量を上書きする。対象がない場合はfalseを返す。
// quantityは1以上であること。0以下の扱いは呼び出し側で決める。
func (r *PostgresCartRepo) SetQuantity(ctx context.Context, userID string, productID int64, quantity int) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $3 WHERE user_id = $1 AND product_id = $2`,
		userID, productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set cart item quantity: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete はカートから商品を削除する。
func (r *PostgresCartRepo) Delete(ctx context.Context, userID string, productID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`,
		userID, productID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return nil
}

// DeleteByUserID はユーザーのカートを空にする。
func (r *PostgresCartRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CartRepository = (*PostgresCartRepo)(nil)
