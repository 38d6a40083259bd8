// Package cart はログインユーザーごとのカート操作を提供する。
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/techshop/internal/metrics"
	"github.com/hitoshi/techshop/internal/model"
	"github.com/hitoshi/techshop/internal/pricing"
	"github.com/hitoshi/techshop/internal/repository"
)

// CatalogReader はカート追加時に参照するカタログの読み取りインターフェース。
// *catalog.Service が実装する。
type CatalogReader interface {
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListCategories(ctx context.Context, f model.CategoryFilter) ([]*model.Category, error)
}

// Manager はカートのサービス層。
// 変更操作のたびに変更後の合計数量をPublisherへ通知する。
type Manager struct {
	carts     repository.CartRepository
	catalog   CatalogReader
	publisher Publisher
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(
	carts repository.CartRepository,
	catalog CatalogReader,
	publisher Publisher,
	m metrics.MetricsCollector,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		carts:     carts,
		catalog:   catalog,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Totals はラインアイテムから合計数量と合計金額を再計算したCartを返す。
func Totals(items []model.CartItem) *model.Cart {
	if items == nil {
		items = []model.CartItem{}
	}
	c := &model.Cart{Items: items}
	for _, item := range items {
		c.TotalQuantity += item.Quantity
		c.TotalPrice += item.Subtotal()
	}
	return c
}

// Get はユーザーのカートを返す。未ログインの場合は空のカートを返す。
func (m *Manager) Get(ctx context.Context, userID string) (*model.Cart, error) {
	if userID == "" {
		return Totals(nil), nil
	}
	items, err := m.carts.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カートの取得に失敗しました: %w", err)
	}
	return Totals(items), nil
}

// Add は商品をカートに1つ追加する。
// 未追加の商品はその時点の実効価格で数量1として登録し、追加済みなら数量だけを1増やす。
func (m *Manager) Add(ctx context.Context, userID string, productID int64) (*model.Cart, error) {
	if userID == "" {
		return nil, model.NewLoginRequiredError()
	}

	product, err := m.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	categories, err := m.catalog.ListCategories(ctx, model.CategoryFilter{})
	if err != nil {
		return nil, err
	}
	quote := pricing.EffectivePrice(product, categories, true)

	item := model.CartItem{
		ProductID:       product.ID,
		Name:            product.Name,
		Price:           quote.Effective,
		OriginalPrice:   quote.Listed,
		Image:           product.Image,
		Quantity:        1,
		DiscountPercent: quote.DiscountPercent,
		AddedAt:         m.now(),
	}
	if _, err := m.carts.AddOrIncrement(ctx, userID, item); err != nil {
		return nil, fmt.Errorf("カートへの追加に失敗しました: %w", err)
	}

	m.logger.Info("カートに商品を追加しました",
		slog.String("user_id", userID),
		slog.Int64("product_id", productID),
		slog.Int64("price", quote.Effective),
	)
	return m.changed(ctx, userID, "add")
}

// SetQuantity は数量を上書きする。0以下を指定した場合は商品を削除する。
func (m *Manager) SetQuantity(ctx context.Context, userID string, productID int64, quantity int) (*model.Cart, error) {
	if userID == "" {
		return nil, model.NewLoginRequiredError()
	}
	if quantity <= 0 {
		return m.Remove(ctx, userID, productID)
	}

	found, err := m.carts.SetQuantity(ctx, userID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("数量の更新に失敗しました: %w", err)
	}
	if !found {
		return nil, model.NewCartItemNotFoundError(productID)
	}
	return m.changed(ctx, userID, "set")
}

// Remove はカートから商品を削除する。対象がなくてもエラーにしない。
func (m *Manager) Remove(ctx context.Context, userID string, productID int64) (*model.Cart, error) {
	if userID == "" {
		return nil, model.NewLoginRequiredError()
	}
	if err := m.carts.Delete(ctx, userID, productID); err != nil {
		return nil, fmt.Errorf("カートからの削除に失敗しました: %w", err)
	}
	return m.changed(ctx, userID, "remove")
}

// Clear はカートを空にする。
func (m *Manager) Clear(ctx context.Context, userID string) (*model.Cart, error) {
	if userID == "" {
		return nil, model.NewLoginRequiredError()
	}
	if err := m.carts.DeleteByUserID(ctx, userID); err != nil {
		return nil, fmt.Errorf("カートのクリアに失敗しました: %w", err)
	}
	return m.changed(ctx, userID, "clear")
}

// changed は変更後のカートを読み直し、メトリクス記録と通知を行う。
func (m *Manager) changed(ctx context.Context, userID, op string) (*model.Cart, error) {
	m.metrics.RecordCartMutation(op)

	c, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	m.publisher.Publish(Changed{UserID: userID, TotalQuantity: c.TotalQuantity})
	return c, nil
}
