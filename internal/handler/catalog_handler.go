package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/techshop/internal/catalog"
	"github.com/hitoshi/techshop/internal/model"
	"github.com/hitoshi/techshop/internal/pricing"
)

// CatalogFallbackHeader は固定リストで応答したことを示すレスポンスヘッダー。
const CatalogFallbackHeader = "X-Catalog-Fallback"

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	ListProducts(ctx context.Context, q model.ProductQuery) catalog.ProductList
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListCategories(ctx context.Context, f model.CategoryFilter) ([]*model.Category, error)
}

// CatalogHandler は商品・カテゴリ閲覧のHTTPハンドラー。
// 価格はリクエストのログイン状態に応じて見積もる。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// productResponse は商品と価格見積もりのAPIレスポンス。
type productResponse struct {
	*model.Product
	pricing.Quote
	ListedDisplay    string `json:"listed_display"`
	EffectiveDisplay string `json:"effective_display"`
}

type productListResponse struct {
	Products []productResponse `json:"products"`
	Fallback bool              `json:"fallback"`
}

func toProductResponse(p *model.Product, categories []*model.Category, hasSession bool) productResponse {
	q := pricing.EffectivePrice(p, categories, hasSession)
	return productResponse{
		Product:          p,
		Quote:            q,
		ListedDisplay:    pricing.FormatPrice(q.Listed),
		EffectiveDisplay: pricing.FormatPrice(q.Effective),
	}
}

// ListProducts は商品一覧を返す。
// GET /api/products?search=&category=&sort=
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	list := h.service.ListProducts(r.Context(), model.ProductQuery{
		Search:   query.Get("search"),
		Category: query.Get("category"),
		Sort:     catalog.ParseSort(query.Get("sort")),
	})

	hasSession := optionalUserID(r) != ""
	categories := h.pricingCategories(r.Context(), hasSession)

	resp := productListResponse{
		Products: make([]productResponse, 0, len(list.Products)),
		Fallback: list.Fallback,
	}
	for _, p := range list.Products {
		resp.Products = append(resp.Products, toProductResponse(p, categories, hasSession))
	}

	if list.Fallback {
		w.Header().Set(CatalogFallbackHeader, "true")
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProduct は商品詳細を返す。
// GET /api/products/{id}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	hasSession := optionalUserID(r) != ""
	writeJSON(w, http.StatusOK, toProductResponse(product, h.pricingCategories(r.Context(), hasSession), hasSession))
}

// ListCategories はカテゴリ一覧を返す。
// GET /api/categories?active=true&discounted=true
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	active, _ := strconv.ParseBool(query.Get("active"))
	discounted, _ := strconv.ParseBool(query.Get("discounted"))

	categories, err := h.service.ListCategories(r.Context(), model.CategoryFilter{
		ActiveOnly:     active,
		DiscountedOnly: discounted,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if categories == nil {
		categories = []*model.Category{}
	}

	writeJSON(w, http.StatusOK, categories)
}

// pricingCategories は割引計算用のカテゴリ一覧を返す。
// 未ログインなら割引は適用されないため読み込まない。読み込みに失敗した場合は定価で表示する。
func (h *CatalogHandler) pricingCategories(ctx context.Context, hasSession bool) []*model.Category {
	if !hasSession {
		return nil
	}
	categories, err := h.service.ListCategories(ctx, model.CategoryFilter{})
	if err != nil {
		slog.Warn("割引計算用のカテゴリを読み込めないため定価で表示します",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return categories
}
