package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/techshop/internal/admin"
	"github.com/hitoshi/techshop/internal/auth"
	"github.com/hitoshi/techshop/internal/cart"
	"github.com/hitoshi/techshop/internal/catalog"
	"github.com/hitoshi/techshop/internal/middleware"
	"github.com/hitoshi/techshop/internal/model"
	"github.com/hitoshi/techshop/internal/order"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn      func(ctx context.Context, in auth.RegisterInput) (*model.Session, *model.User, error)
	loginFn         func(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	logoutFn        func(ctx context.Context, sessionID string) error
	currentUserFn   func(ctx context.Context, sessionID string) (*model.User, error)
	updateProfileFn func(ctx context.Context, userID string, upd auth.ProfileUpdate) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.Session, *model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockAuthService) UpdateProfile(ctx context.Context, userID string, upd auth.ProfileUpdate) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, upd)
	}
	return nil, nil
}

type mockCatalogService struct {
	listProductsFn   func(ctx context.Context, q model.ProductQuery) catalog.ProductList
	getProductFn     func(ctx context.Context, id int64) (*model.Product, error)
	listCategoriesFn func(ctx context.Context, f model.CategoryFilter) ([]*model.Category, error)
}

func (m *mockCatalogService) ListProducts(ctx context.Context, q model.ProductQuery) catalog.ProductList {
	if m.listProductsFn != nil {
		return m.listProductsFn(ctx, q)
	}
	return catalog.ProductList{}
}

func (m *mockCatalogService) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	if m.getProductFn != nil {
		return m.getProductFn(ctx, id)
	}
	return nil, model.NewProductNotFoundError(id)
}

func (m *mockCatalogService) ListCategories(ctx context.Context, f model.CategoryFilter) ([]*model.Category, error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx, f)
	}
	return nil, nil
}

type mockCartService struct {
	getFn         func(ctx context.Context, userID string) (*model.Cart, error)
	addFn         func(ctx context.Context, userID string, productID int64) (*model.Cart, error)
	setQuantityFn func(ctx context.Context, userID string, productID int64, quantity int) (*model.Cart, error)
	removeFn      func(ctx context.Context, userID string, productID int64) (*model.Cart, error)
	clearFn       func(ctx context.Context, userID string) (*model.Cart, error)
}

func (m *mockCartService) Get(ctx context.Context, userID string) (*model.Cart, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return &model.Cart{}, nil
}

func (m *mockCartService) Add(ctx context.Context, userID string, productID int64) (*model.Cart, error) {
	if m.addFn != nil {
		return m.addFn(ctx, userID, productID)
	}
	return &model.Cart{}, nil
}

func (m *mockCartService) SetQuantity(ctx context.Context, userID string, productID int64, quantity int) (*model.Cart, error) {
	if m.setQuantityFn != nil {
		return m.setQuantityFn(ctx, userID, productID, quantity)
	}
	return &model.Cart{}, nil
}

func (m *mockCartService) Remove(ctx context.Context, userID string, productID int64) (*model.Cart, error) {
	if m.removeFn != nil {
		return m.removeFn(ctx, userID, productID)
	}
	return &model.Cart{}, nil
}

func (m *mockCartService) Clear(ctx context.Context, userID string) (*model.Cart, error) {
	if m.clearFn != nil {
		return m.clearFn(ctx, userID)
	}
	return &model.Cart{}, nil
}

// chanSubscriber はテストから直接イベントを流せるCartSubscriber。
type chanSubscriber struct {
	ch        chan cart.Changed
	userID    string
	cancelled bool
}

func (s *chanSubscriber) Subscribe(userID string) (<-chan cart.Changed, func()) {
	s.userID = userID
	return s.ch, func() { s.cancelled = true }
}

type mockOrderService struct {
	placeOrderFn  func(ctx context.Context, userID string, customer model.CustomerInfo) (*model.Order, error)
	listForUserFn func(ctx context.Context, userID string) ([]*model.Order, error)
	getForUserFn  func(ctx context.Context, userID, orderID string) (*model.Order, error)
	cancelFn      func(ctx context.Context, userID, orderID string) (*model.Order, error)
}

func (m *mockOrderService) PlaceOrder(ctx context.Context, userID string, customer model.CustomerInfo) (*model.Order, error) {
	if m.placeOrderFn != nil {
		return m.placeOrderFn(ctx, userID, customer)
	}
	return nil, model.NewEmptyCartError()
}

func (m *mockOrderService) ListForUser(ctx context.Context, userID string) ([]*model.Order, error) {
	if m.listForUserFn != nil {
		return m.listForUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockOrderService) GetForUser(ctx context.Context, userID, orderID string) (*model.Order, error) {
	if m.getForUserFn != nil {
		return m.getForUserFn(ctx, userID, orderID)
	}
	return nil, model.NewOrderNotFoundError(orderID)
}

func (m *mockOrderService) Cancel(ctx context.Context, userID, orderID string) (*model.Order, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, userID, orderID)
	}
	return nil, model.NewOrderNotFoundError(orderID)
}

// mockAdminConsole は必要なメソッドだけ差し替えられるAdminConsoleInterfaceのモック。
type mockAdminConsole struct {
	deleteUserFn     func(ctx context.Context, id string, confirm bool) error
	createProductFn  func(ctx context.Context, p *model.Product) (*model.Product, error)
	deleteProductFn  func(ctx context.Context, id int64, confirm bool) error
	listOrdersFn     func(ctx context.Context) ([]*model.Order, error)
	setOrderStatusFn func(ctx context.Context, id, status string) (*model.Order, error)
	statsFn          func(ctx context.Context) (*admin.Stats, error)
	importFn         func(ctx context.Context, rawURL string) (*catalog.ImportResult, error)
}

func (m *mockAdminConsole) ListUsers(ctx context.Context) ([]*model.User, error) { return nil, nil }
func (m *mockAdminConsole) GetUser(ctx context.Context, id string) (*model.User, error) {
	return nil, model.NewUserNotFoundError()
}
func (m *mockAdminConsole) CreateUser(ctx context.Context, in admin.UserInput) (*model.User, error) {
	return &model.User{ID: in.ID, Name: in.Name, Email: in.Email, IsAdmin: in.IsAdmin}, nil
}
func (m *mockAdminConsole) UpdateUser(ctx context.Context, id string, in admin.UserInput) (*model.User, error) {
	return &model.User{ID: id, Name: in.Name, Email: in.Email}, nil
}
func (m *mockAdminConsole) DeleteUser(ctx context.Context, id string, confirm bool) error {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(ctx, id, confirm)
	}
	return nil
}
func (m *mockAdminConsole) ListProducts(ctx context.Context) ([]*model.Product, error) {
	return nil, nil
}
func (m *mockAdminConsole) CreateProduct(ctx context.Context, p *model.Product) (*model.Product, error) {
	if m.createProductFn != nil {
		return m.createProductFn(ctx, p)
	}
	return p, nil
}
func (m *mockAdminConsole) UpdateProduct(ctx context.Context, id int64, p *model.Product) (*model.Product, error) {
	p.ID = id
	return p, nil
}
func (m *mockAdminConsole) DeleteProduct(ctx context.Context, id int64, confirm bool) error {
	if m.deleteProductFn != nil {
		return m.deleteProductFn(ctx, id, confirm)
	}
	return nil
}
func (m *mockAdminConsole) ListCategories(ctx context.Context) ([]*model.Category, error) {
	return nil, nil
}
func (m *mockAdminConsole) CreateCategory(ctx context.Context, c *model.Category) (*model.Category, error) {
	return c, nil
}
func (m *mockAdminConsole) UpdateCategory(ctx context.Context, id int64, c *model.Category) (*model.Category, error) {
	c.ID = id
	return c, nil
}
func (m *mockAdminConsole) DeleteCategory(ctx context.Context, id int64, confirm bool) error {
	return nil
}
func (m *mockAdminConsole) ListOrders(ctx context.Context) ([]*model.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx)
	}
	return nil, nil
}
func (m *mockAdminConsole) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return nil, model.NewOrderNotFoundError(id)
}
func (m *mockAdminConsole) SetOrderStatus(ctx context.Context, id, status string) (*model.Order, error) {
	if m.setOrderStatusFn != nil {
		return m.setOrderStatusFn(ctx, id, status)
	}
	return nil, nil
}
func (m *mockAdminConsole) Stats(ctx context.Context) (*admin.Stats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &admin.Stats{}, nil
}
func (m *mockAdminConsole) ImportCatalog(ctx context.Context, rawURL string) (*catalog.ImportResult, error) {
	if m.importFn != nil {
		return m.importFn(ctx, rawURL)
	}
	return &catalog.ImportResult{}, nil
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseAPIErrorResponse はレスポンスボディから統一エラーフォーマットをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

var (
	_ AuthServiceInterface    = (*auth.Service)(nil)
	_ CatalogServiceInterface = (*catalog.Service)(nil)
	_ CartServiceInterface    = (*cart.Manager)(nil)
	_ CartSubscriber          = (*cart.Notifier)(nil)
	_ OrderServiceInterface   = (*order.Manager)(nil)
	_ AdminConsoleInterface   = (*admin.Console)(nil)
)
