package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/techshop/internal/cart"
	"github.com/hitoshi/techshop/internal/model"
	"github.com/hitoshi/techshop/internal/pricing"
)

// defaultHeartbeat はSSE接続を維持するためのコメント送信間隔。
const defaultHeartbeat = 25 * time.Second

// CartServiceInterface はカートハンドラーが必要とするサービスインターフェース。
type CartServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.Cart, error)
	Add(ctx context.Context, userID string, productID int64) (*model.Cart, error)
	SetQuantity(ctx context.Context, userID string, productID int64, quantity int) (*model.Cart, error)
	Remove(ctx context.Context, userID string, productID int64) (*model.Cart, error)
	Clear(ctx context.Context, userID string) (*model.Cart, error)
}

// CartSubscriber はカート変更イベントの購読インターフェース。
type CartSubscriber interface {
	Subscribe(userID string) (<-chan cart.Changed, func())
}

// CartHandler はカート操作とバッジ用イベントストリームのHTTPハンドラー。
type CartHandler struct {
	service    CartServiceInterface
	subscriber CartSubscriber
	heartbeat  time.Duration
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(service CartServiceInterface, subscriber CartSubscriber) *CartHandler {
	return &CartHandler{
		service:    service,
		subscriber: subscriber,
		heartbeat:  defaultHeartbeat,
	}
}

type addCartItemRequest struct {
	ProductID int64 `json:"product_id"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type cartResponse struct {
	Items         []model.CartItem `json:"items"`
	TotalQuantity int              `json:"total_quantity"`
	TotalPrice    int64            `json:"total_price"`
	TotalDisplay  string           `json:"total_display"`
}

func toCartResponse(c *model.Cart) cartResponse {
	items := c.Items
	if items == nil {
		items = []model.CartItem{}
	}
	return cartResponse{
		Items:         items,
		TotalQuantity: c.TotalQuantity,
		TotalPrice:    c.TotalPrice,
		TotalDisplay:  pricing.FormatPrice(c.TotalPrice),
	}
}

// GetCart はログインユーザーのカートを返す。
// GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}
	h.respond(w, http.StatusOK)(h.service.Get(r.Context(), userID))
}

// AddItem は商品をカートに1つ追加する。既にある場合は数量を1増やす。
// POST /api/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	var req addCartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		handleServiceError(w, model.NewValidationError("product_idが正しくありません"))
		return
	}

	h.respond(w, http.StatusOK)(h.service.Add(r.Context(), userID, req.ProductID))
}

// SetQuantity はラインアイテムの数量を設定する。0以下は削除として扱う。
// PUT /api/cart/items/{productID}
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}
	productID, ok := int64Param(w, r, "productID")
	if !ok {
		return
	}

	var req setQuantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	h.respond(w, http.StatusOK)(h.service.SetQuantity(r.Context(), userID, productID, req.Quantity))
}

// RemoveItem はラインアイテムを削除する。
// DELETE /api/cart/items/{productID}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}
	productID, ok := int64Param(w, r, "productID")
	if !ok {
		return
	}

	h.respond(w, http.StatusOK)(h.service.Remove(r.Context(), userID, productID))
}

// ClearCart はカートを空にする。
// DELETE /api/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}
	h.respond(w, http.StatusOK)(h.service.Clear(r.Context(), userID))
}

// respond はサービスの戻り値をそのままレスポンスに変換する関数を返す。
func (h *CartHandler) respond(w http.ResponseWriter, status int) func(*model.Cart, error) {
	return func(c *model.Cart, err error) {
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, status, toCartResponse(c))
	}
}

// Events はカートの合計数量をServer-Sent Eventsで配信する。
// 接続直後に現在値を1回送り、以降は変更のたびに送る。
// GET /api/cart/events
func (h *CartHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	rc := http.NewResponseController(w)
	// サーバーのWriteTimeoutでストリームが切れないよう期限を外す。未対応のWriterでは無視する
	_ = rc.SetWriteDeadline(time.Time{})

	events, cancel := h.subscriber.Subscribe(userID)
	defer cancel()

	current, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeCartEvent(w, rc, cart.Changed{UserID: userID, TotalQuantity: current.TotalQuantity}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeCartEvent(w, rc, ev); err != nil {
				slog.Debug("cart event stream closed", slog.String("user_id", userID), slog.String("error", err.Error()))
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeCartEvent(w http.ResponseWriter, rc *http.ResponseController, ev cart.Changed) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: cart\ndata: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
