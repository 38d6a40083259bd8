// Package catalog は商品・カテゴリの読み取りと初期投入、外部カタログの取り込みを提供する。
//
// ストアフロントと管理画面は同じリポジトリを共有するため、管理画面での更新は
// 次の読み取りからそのまま反映される。
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/techshop/internal/metrics"
	"github.com/hitoshi/techshop/internal/model"
	"github.com/hitoshi/techshop/internal/repository"
)

// ProductList は商品一覧の取得結果。
// Fallbackがtrueの場合、ストアの読み込みに失敗して固定リストを返している。
type ProductList struct {
	Products []*model.Product
	Fallback bool
}

// Service はカタログの読み取りサービス。
type Service struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	products repository.ProductRepository,
	categories repository.CategoryRepository,
	m metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		products:   products,
		categories: categories,
		metrics:    m,
		logger:     logger,
	}
}

// ListProducts は条件に合う商品一覧を返す。
// ストアの読み込みに失敗した場合はエラーにせず、固定リストに同じ条件を適用して返す。
func (s *Service) ListProducts(ctx context.Context, q model.ProductQuery) ProductList {
	products, err := s.products.List(ctx)
	if err != nil {
		s.logger.Warn("商品一覧の読み込みに失敗したため固定リストを返します",
			slog.String("error", err.Error()),
		)
		s.metrics.RecordCatalogFallback()
		return ProductList{Products: Filter(FallbackProducts(), q), Fallback: true}
	}
	return ProductList{Products: Filter(products, q)}
}

// GetProduct は指定IDの商品を返す。
// ストアが読めない場合は固定リストから探し、そこにもなければCatalogUnavailableを返す。
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("商品の読み込みに失敗しました",
			slog.Int64("product_id", id),
			slog.String("error", err.Error()),
		)
		for _, p := range FallbackProducts() {
			if p.ID == id {
				s.metrics.RecordCatalogFallback()
				return p, nil
			}
		}
		return nil, model.NewCatalogUnavailableError("商品")
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(id)
	}
	return product, nil
}

// ListCategories は条件に合うカテゴリ一覧を返す。
// 固定のフォールバックは持たず、読み込み失敗はCatalogUnavailableとして返す。
func (s *Service) ListCategories(ctx context.Context, f model.CategoryFilter) ([]*model.Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		s.logger.Error("カテゴリ一覧の読み込みに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewCatalogUnavailableError("カテゴリ")
	}
	return FilterCategories(categories, f), nil
}

// Seed はストアが空の場合に同梱の初期カタログを投入する。
// 商品・カテゴリのどちらかが既に存在する場合は何もしない。
func (s *Service) Seed(ctx context.Context) error {
	count, err := s.products.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		return nil
	}
	existing, err := s.categories.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	products, categories, err := SeedData()
	if err != nil {
		return err
	}
	if err := s.categories.Upsert(ctx, categories); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}
	if err := s.products.Upsert(ctx, products); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}

	s.logger.Info("初期カタログを投入しました",
		slog.Int("products", len(products)),
		slog.Int("categories", len(categories)),
	)
	return nil
}
