// Package order は注文の作成とステータス管理を提供する。
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/techshop/internal/cart"
	"github.com/hitoshi/techshop/internal/idgen"
	"github.com/hitoshi/techshop/internal/metrics"
	"github.com/hitoshi/techshop/internal/model"
	"github.com/hitoshi/techshop/internal/repository"
)

// maxNumberAttempts は注文番号が重複した場合に採番し直す上限回数。
const maxNumberAttempts = 3

// DefaultPaymentMethod は支払い方法が未指定の場合に使う値（代金引換）。
const DefaultPaymentMethod = "naqd"

var paymentMethods = map[string]bool{
	"naqd":  true,
	"karta": true,
	"click": true,
	"payme": true,
}

// Manager は注文のサービス層。
type Manager struct {
	orders    repository.OrderRepository
	ids       *idgen.Generator
	publisher cart.Publisher
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(
	orders repository.OrderRepository,
	ids *idgen.Generator,
	publisher cart.Publisher,
	m metrics.MetricsCollector,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		orders:    orders,
		ids:       ids,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// PlaceOrder はユーザーのカートから注文を作成する。
//
// カートの読み取り、注文の保存、カートのクリアは同一トランザクションで行う。
// カートが空の場合はEmptyCartを返し、注文は作成しない。
// 成功後、カート変更イベント（数量0）を発行する。
func (m *Manager) PlaceOrder(ctx context.Context, userID string, customer model.CustomerInfo) (*model.Order, error) {
	if userID == "" {
		return nil, model.NewLoginRequiredError()
	}
	customer, err := normalizeCustomer(customer)
	if err != nil {
		return nil, err
	}

	order, err := m.createFromCart(ctx, userID, customer)
	if err != nil {
		if model.HasCode(err, model.ErrCodeEmptyCart) {
			return nil, err
		}
		return nil, fmt.Errorf("注文の作成に失敗しました: %w", err)
	}

	m.metrics.RecordOrderPlaced(order.Total)
	m.publisher.Publish(cart.Changed{UserID: userID, TotalQuantity: 0})
	m.logger.Info("注文を受け付けました",
		slog.String("order_id", order.ID),
		slog.String("number", order.Number),
		slog.String("user_id", userID),
		slog.Int64("total", order.Total),
		slog.Int("items", len(order.Items)),
	)
	return order, nil
}

// createFromCart はカートから注文を保存する。
// 別プロセスと注文番号が衝突した場合は新しい番号で最大maxNumberAttempts回まで試す。
func (m *Manager) createFromCart(ctx context.Context, userID string, customer model.CustomerInfo) (*model.Order, error) {
	build := func(items []model.CartItem) (*model.Order, error) {
		if len(items) == 0 {
			return nil, model.NewEmptyCartError()
		}
		now := m.now()
		return &model.Order{
			ID:        uuid.New().String(),
			Number:    m.ids.OrderNumber(),
			UserID:    userID,
			Items:     items,
			Total:     cart.Totals(items).TotalPrice,
			Customer:  customer,
			Status:    model.OrderStatusUnderReview,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}

	var err error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		var order *model.Order
		order, err = m.orders.CreateFromCart(ctx, userID, build)
		if !errors.Is(err, repository.ErrDuplicateOrderNumber) {
			return order, err
		}
		m.logger.Warn("注文番号が重複したため採番し直します",
			slog.String("user_id", userID),
			slog.Int("attempt", attempt),
		)
	}
	return nil, err
}

// normalizeCustomer は配送情報の前後空白を除去し、必須項目と支払い方法を検証する。
func normalizeCustomer(c model.CustomerInfo) (model.CustomerInfo, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Email = strings.TrimSpace(c.Email)
	c.Address = strings.TrimSpace(c.Address)
	c.City = strings.TrimSpace(c.City)
	c.PostalCode = strings.TrimSpace(c.PostalCode)
	c.Note = strings.TrimSpace(c.Note)
	c.PaymentMethod = strings.TrimSpace(c.PaymentMethod)

	switch {
	case c.Name == "":
		return c, model.NewValidationError("氏名は必須です")
	case c.Phone == "":
		return c, model.NewValidationError("電話番号は必須です")
	case c.Address == "":
		return c, model.NewValidationError("住所は必須です")
	}
	if c.PaymentMethod == "" {
		c.PaymentMethod = DefaultPaymentMethod
	}
	if !paymentMethods[c.PaymentMethod] {
		return c, model.NewValidationError(fmt.Sprintf("未対応の支払い方法です: %s", c.PaymentMethod))
	}
	return c, nil
}

// Get は指定IDの注文を返す。
func (m *Manager) Get(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := m.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if order == nil {
		return nil, model.NewOrderNotFoundError(orderID)
	}
	return order, nil
}

// GetForUser はユーザー自身の注文を返す。他人の注文は存在しないものとして扱う。
func (m *Manager) GetForUser(ctx context.Context, userID, orderID string) (*model.Order, error) {
	if userID == "" {
		return nil, model.NewLoginRequiredError()
	}
	order, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, model.NewOrderNotFoundError(orderID)
	}
	return order, nil
}

// ListForUser はユーザーの注文を保存順に返す。
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]*model.Order, error) {
	if userID == "" {
		return nil, model.NewLoginRequiredError()
	}
	orders, err := m.orders.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗しました: %w", err)
	}
	return orders, nil
}

// ListAll は全注文を保存順に返す。
func (m *Manager) ListAll(ctx context.Context) ([]*model.Order, error) {
	orders, err := m.orders.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗しました: %w", err)
	}
	return orders, nil
}

// NewestFirst は作成日時の降順に並べ替えた新しいスライスを返す。表示用。
func NewestFirst(orders []*model.Order) []*model.Order {
	sorted := append([]*model.Order(nil), orders...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}

// SetStatus は注文のステータスを変更する。
// 遷移表にない変更はInvalidTransitionを返す。現在と同じステータスの指定は何もしない。
func (m *Manager) SetStatus(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	order, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == status {
		return order, nil
	}
	if !CanTransition(order.Status, status) {
		return nil, model.NewInvalidTransitionError(order.Status, status)
	}

	if err := m.orders.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, fmt.Errorf("注文ステータスの更新に失敗しました: %w", err)
	}

	m.metrics.RecordOrderStatusChange(string(status))
	m.logger.Info("注文ステータスを変更しました",
		slog.String("order_id", orderID),
		slog.String("from", string(order.Status)),
		slog.String("to", string(status)),
	)

	order.Status = status
	order.UpdatedAt = m.now()
	return order, nil
}

// Cancel は顧客自身による注文キャンセル。自分の注文のみ対象とする。
func (m *Manager) Cancel(ctx context.Context, userID, orderID string) (*model.Order, error) {
	if _, err := m.GetForUser(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return m.SetStatus(ctx, orderID, model.OrderStatusCancelled)
}
