package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/techshop/internal/model"
)

// ErrDuplicateOrderNumber は注文番号が既存の注文と重複した場合のエラー。
// 複数プロセスが同じミリ秒で採番した場合に起こりうる。
var ErrDuplicateOrderNumber = errors.New("duplicate order number")

// orderNumberConstraint はorders.numberの一意制約名。
const orderNumberConstraint = "orders_number_key"

// PostgresOrderRepo はPostgreSQLを使用した注文リポジトリ。
// ラインアイテムと顧客情報はJSONBのスナップショットとして保存する。
type PostgresOrderRepo struct {
	db *sql.DB
}

// NewPostgresOrderRepo はPostgresOrderRepoを生成する。
func NewPostgresOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

const orderColumns = `id, number, user_id, items, total, customer, status, created_at, updated_at`

func scanOrder(row rowScanner) (*model.Order, error) {
	o := &model.Order{}
	var itemsJSON, customerJSON []byte
	if err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &itemsJSON, &o.Total, &customerJSON,
		&o.Status, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	if err := json.Unmarshal(customerJSON, &o.Customer); err != nil {
		return nil, fmt.Errorf("failed to decode order customer: %w", err)
	}
	return o, nil
}

// CreateFromCart はユーザーのカート行をFOR UPDATEでロックし、buildで組み立てた注文を
// 保存してカートを空にする。buildがエラーを返した場合は何も反映しない。
func (r *PostgresOrderRepo) CreateFromCart(ctx context.Context, userID string, build OrderBuilder) (*model.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+cartItemColumns+`
		 FROM cart_items
		 WHERE user_id = $1
		 ORDER BY added_at ASC, product_id ASC
		 FOR UPDATE`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart items: %w", err)
	}
	items, err := collectCartItems(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	order, err := build(items)
	if err != nil {
		return nil, err
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order items: %w", err)
	}
	customerJSON, err := json.Marshal(order.Customer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order customer: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.Number, order.UserID, itemsJSON, order.Total, customerJSON,
		order.Status, order.CreatedAt, order.UpdatedAt,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == orderNumberConstraint {
			return nil, fmt.Errorf("failed to insert order: %w", ErrDuplicateOrderNumber)
		}
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	// 削除するのはロックした行だけ。注文処理中に追加された商品はカートに残る。
	productIDs := make([]int64, 0, len(items))
	for _, it := range items {
		productIDs = append(productIDs, it.ProductID)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)`,
		userID, pq.Array(productIDs),
	); err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return order, nil
}

// FindByID は指定IDの注文を取得する。見つからない場合はnilを返す。
func (r *PostgresOrderRepo) FindByID(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return o, nil
}

// ListByUserID はユーザーの注文を保存順に返す。
func (r *PostgresOrderRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY seq ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListAll は全注文を保存順に返す。
func (r *PostgresOrderRepo) ListAll(ctx context.Context) ([]*model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows *sql.Rows) ([]*model.Order, error) {
	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus は注文のステータスを上書きする。
func (r *PostgresOrderRepo) UpdateStatus(ctx context.Context, id string, status model.OrderStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("order not found: %s", id)
	}
	return nil
}

// Stats は管理画面向けの注文集計を返す。
func (r *PostgresOrderRepo) Stats(ctx context.Context) (*model.OrderStats, error) {
	stats := &model.OrderStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT
		     COUNT(*),
		     COUNT(*) FILTER (WHERE status = $1),
		     COALESCE(SUM(total) FILTER (WHERE status = $2), 0)
		 FROM orders`,
		model.OrderStatusUnderReview, model.OrderStatusDelivered,
	).Scan(&stats.TotalOrders, &stats.PendingOrders, &stats.Revenue)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate orders: %w", err)
	}
	return stats, nil
}

// compile-time interface check
var _ OrderRepository = (*PostgresOrderRepo)(nil)
