package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/techshop/internal/model"
	"github.com/hitoshi/techshop/internal/order"
	"github.com/hitoshi/techshop/internal/pricing"
)

// OrderServiceInterface は注文ハンドラーが必要とするサービスインターフェース。
type OrderServiceInterface interface {
	PlaceOrder(ctx context.Context, userID string, customer model.CustomerInfo) (*model.Order, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Order, error)
	GetForUser(ctx context.Context, userID, orderID string) (*model.Order, error)
	Cancel(ctx context.Context, userID, orderID string) (*model.Order, error)
}

// OrderHandler は購入者向けの注文HTTPハンドラー。
type OrderHandler struct {
	service OrderServiceInterface
}

// NewOrderHandler はOrderHandlerを生成する。
func NewOrderHandler(service OrderServiceInterface) *OrderHandler {
	return &OrderHandler{service: service}
}

// orderResponse は注文のAPIレスポンス。
type orderResponse struct {
	ID           string             `json:"id"`
	Number       string             `json:"number"`
	UserID       string             `json:"user_id"`
	Items        []model.CartItem   `json:"items"`
	Total        int64              `json:"total"`
	TotalDisplay string             `json:"total_display"`
	Customer     model.CustomerInfo `json:"customer"`
	Status       model.OrderStatus  `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	items := o.Items
	if items == nil {
		items = []model.CartItem{}
	}
	return orderResponse{
		ID:           o.ID,
		Number:       o.Number,
		UserID:       o.UserID,
		Items:        items,
		Total:        o.Total,
		TotalDisplay: pricing.FormatPrice(o.Total),
		Customer:     o.Customer,
		Status:       o.Status,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func toOrderResponses(orders []*model.Order) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	return resp
}

// PlaceOrder はカートの内容から注文を作成する。
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	var customer model.CustomerInfo
	if !decodeJSON(w, r, &customer) {
		return
	}

	placed, err := h.service.PlaceOrder(r.Context(), userID, customer)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(placed))
}

// ListOrders はログインユーザーの注文履歴を新しい順に返す。
// GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	orders, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponses(order.NewestFirst(orders)))
}

// GetOrder は自分の注文の詳細を返す。他人の注文は404とする。
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	o, err := h.service.GetForUser(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// CancelOrder は自分の注文をキャンセルする。
// POST /api/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	o, err := h.service.Cancel(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
