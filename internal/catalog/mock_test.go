package catalog

import (
	"context"
	"time"

	"github.com/hitoshi/techshop/internal/model"
)

// --- テスト用モック ---

type mockProductRepo struct {
	listFn     func(ctx context.Context) ([]*model.Product, error)
	findByIDFn func(ctx context.Context, id int64) (*model.Product, error)
	countFn    func(ctx context.Context) (int, error)
	upsertFn   func(ctx context.Context, products []*model.Product) error
}

func (m *mockProductRepo) List(ctx context.Context) ([]*model.Product, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockProductRepo) FindByID(ctx context.Context, id int64) (*model.Product, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockProductRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

func (m *mockProductRepo) Create(ctx context.Context, p *model.Product) error { return nil }

func (m *mockProductRepo) Update(ctx context.Context, p *model.Product) (bool, error) {
	return true, nil
}

func (m *mockProductRepo) Delete(ctx context.Context, id int64) (bool, error) { return true, nil }

func (m *mockProductRepo) Upsert(ctx context.Context, products []*model.Product) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, products)
	}
	return nil
}

type mockCategoryRepo struct {
	listFn   func(ctx context.Context) ([]*model.Category, error)
	upsertFn func(ctx context.Context, categories []*model.Category) error
}

func (m *mockCategoryRepo) List(ctx context.Context) ([]*model.Category, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockCategoryRepo) FindByID(ctx context.Context, id int64) (*model.Category, error) {
	return nil, nil
}

func (m *mockCategoryRepo) Create(ctx context.Context, c *model.Category) error { return nil }

func (m *mockCategoryRepo) Update(ctx context.Context, c *model.Category) (bool, error) {
	return true, nil
}

func (m *mockCategoryRepo) Delete(ctx context.Context, id int64) (bool, error) { return true, nil }

func (m *mockCategoryRepo) Upsert(ctx context.Context, categories []*model.Category) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, categories)
	}
	return nil
}

// countingMetrics はカタログ関連の記録だけを保持するMetricsCollector。
type countingMetrics struct {
	fallbacks      int
	importFailures []string
	imported       [2]int
	statuses       []int
}

func (m *countingMetrics) RecordOrderPlaced(int64)           {}
func (m *countingMetrics) RecordOrderStatusChange(string)    {}
func (m *countingMetrics) RecordCartMutation(string)         {}
func (m *countingMetrics) RecordLoginFailure()               {}
func (m *countingMetrics) RecordCatalogFallback()            { m.fallbacks++ }
func (m *countingMetrics) RecordCatalogFetchStatus(code int) { m.statuses = append(m.statuses, code) }
func (m *countingMetrics) RecordHTTPStatus(int)              {}
func (m *countingMetrics) RecordImportLatency(time.Duration) {}
func (m *countingMetrics) RecordCatalogImportFailure(reason string) {
	m.importFailures = append(m.importFailures, reason)
}
func (m *countingMetrics) RecordCatalogImport(products, categories int) {
	m.imported = [2]int{products, categories}
}
