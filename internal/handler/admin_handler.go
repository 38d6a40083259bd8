package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/techshop/internal/admin"
	"github.com/hitoshi/techshop/internal/catalog"
	"github.com/hitoshi/techshop/internal/model"
)

// AdminConsoleInterface は管理ハンドラーが必要とするサービスインターフェース。
type AdminConsoleInterface interface {
	ListUsers(ctx context.Context) ([]*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	CreateUser(ctx context.Context, in admin.UserInput) (*model.User, error)
	UpdateUser(ctx context.Context, id string, in admin.UserInput) (*model.User, error)
	DeleteUser(ctx context.Context, id string, confirm bool) error

	ListProducts(ctx context.Context) ([]*model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) (*model.Product, error)
	UpdateProduct(ctx context.Context, id int64, p *model.Product) (*model.Product, error)
	DeleteProduct(ctx context.Context, id int64, confirm bool) error

	ListCategories(ctx context.Context) ([]*model.Category, error)
	CreateCategory(ctx context.Context, c *model.Category) (*model.Category, error)
	UpdateCategory(ctx context.Context, id int64, c *model.Category) (*model.Category, error)
	DeleteCategory(ctx context.Context, id int64, confirm bool) error

	ListOrders(ctx context.Context) ([]*model.Order, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	SetOrderStatus(ctx context.Context, id, status string) (*model.Order, error)

	Stats(ctx context.Context) (*admin.Stats, error)
	ImportCatalog(ctx context.Context, rawURL string) (*catalog.ImportResult, error)
}

// AdminHandler は /api/admin 配下のHTTPハンドラー。
// 権限チェックはルーターのAdminMiddlewareで行う。
type AdminHandler struct {
	console AdminConsoleInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(console AdminConsoleInterface) *AdminHandler {
	return &AdminHandler{console: console}
}

type adminUserRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"admin"`
}

func (req adminUserRequest) input() admin.UserInput {
	return admin.UserInput{
		ID:       req.ID,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		Password: req.Password,
		IsAdmin:  req.IsAdmin,
	}
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

type importRequest struct {
	URL string `json:"url"`
}

// --- ユーザー ---

// ListUsers は GET /api/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.console.ListUsers(r.Context())
	writeResult(w, http.StatusOK, emptyIfNil(users), err)
}

// GetUser は GET /api/admin/users/{id}
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.console.GetUser(r.Context(), chi.URLParam(r, "id"))
	writeResult(w, http.StatusOK, user, err)
}

// CreateUser は POST /api/admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req adminUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.console.CreateUser(r.Context(), req.input())
	writeResult(w, http.StatusCreated, user, err)
}

// UpdateUser は PUT /api/admin/users/{id}
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req adminUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.console.UpdateUser(r.Context(), chi.URLParam(r, "id"), req.input())
	writeResult(w, http.StatusOK, user, err)
}

// DeleteUser は DELETE /api/admin/users/{id}?confirm=true
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	writeDeleted(w, h.console.DeleteUser(r.Context(), chi.URLParam(r, "id"), confirmed(r)))
}

// --- 商品 ---

// ListProducts は GET /api/admin/products
func (h *AdminHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.console.ListProducts(r.Context())
	writeResult(w, http.StatusOK, emptyIfNil(products), err)
}

// CreateProduct は POST /api/admin/products
func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p model.Product
	if !decodeJSON(w, r, &p) {
		return
	}
	created, err := h.console.CreateProduct(r.Context(), &p)
	writeResult(w, http.StatusCreated, created, err)
}

// UpdateProduct は PUT /api/admin/products/{id}
func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	var p model.Product
	if !decodeJSON(w, r, &p) {
		return
	}
	updated, err := h.console.UpdateProduct(r.Context(), id, &p)
	writeResult(w, http.StatusOK, updated, err)
}

// DeleteProduct は DELETE /api/admin/products/{id}?confirm=true
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	writeDeleted(w, h.console.DeleteProduct(r.Context(), id, confirmed(r)))
}

// --- カテゴリ ---

// ListCategories は GET /api/admin/categories
func (h *AdminHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.console.ListCategories(r.Context())
	writeResult(w, http.StatusOK, emptyIfNil(categories), err)
}

// CreateCategory は POST /api/admin/categories
func (h *AdminHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var c model.Category
	if !decodeJSON(w, r, &c) {
		return
	}
	created, err := h.console.CreateCategory(r.Context(), &c)
	writeResult(w, http.StatusCreated, created, err)
}

// UpdateCategory は PUT /api/admin/categories/{id}
func (h *AdminHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	var c model.Category
	if !decodeJSON(w, r, &c) {
		return
	}
	updated, err := h.console.UpdateCategory(r.Context(), id, &c)
	writeResult(w, http.StatusOK, updated, err)
}

// DeleteCategory は DELETE /api/admin/categories/{id}?confirm=true
func (h *AdminHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	writeDeleted(w, h.console.DeleteCategory(r.Context(), id, confirmed(r)))
}

// --- 注文 ---

// ListOrders は GET /api/admin/orders
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.console.ListOrders(r.Context())
	writeResult(w, http.StatusOK, toOrderResponses(orders), err)
}

// GetOrder は GET /api/admin/orders/{id}
func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.console.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// SetOrderStatus は PUT /api/admin/orders/{id}/status
func (h *AdminHandler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.console.SetOrderStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// --- その他 ---

// Stats は GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.console.Stats(r.Context())
	writeResult(w, http.StatusOK, stats, err)
}

// ImportCatalog は POST /api/admin/catalog/import
func (h *AdminHandler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.console.ImportCatalog(r.Context(), req.URL)
	writeResult(w, http.StatusOK, result, err)
}

func writeResult(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, status, v)
}

func writeDeleted(w http.ResponseWriter, err error) {
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// emptyIfNil はnilスライスをJSONの空配列として返すために置き換える。
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
