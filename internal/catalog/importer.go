package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/techshop/internal/metrics"
	"github.com/hitoshi/techshop/internal/model"
	"github.com/hitoshi/techshop/internal/repository"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Sanitizer はテキストの無害化インターフェース。
type Sanitizer interface {
	Sanitize(text string) string
}

// Document は外部カタログJSONの形式。
type Document struct {
	Categories []*model.Category `json:"categories"`
	Products   []*model.Product  `json:"products"`
}

// ImportResult はインポート結果。NotModifiedの場合は件数0で何も更新していない。
type ImportResult struct {
	Products    int  `json:"products"`
	Categories  int  `json:"categories"`
	NotModified bool `json:"not_modified"`
}

// ErrImportFetch は外部カタログの取得に失敗したことを表す。ワーカーのリトライ判定に使う。
var ErrImportFetch = errors.New("catalog fetch failed")

// Importer は外部カタログJSONを取得し、カテゴリ・商品をID単位でUPSERTする。
// URLごとに直前のETagを保持し、条件付きGETで未変更時の書き込みを省く。
type Importer struct {
	products    repository.ProductRepository
	categories  repository.CategoryRepository
	ssrfGuard   SSRFValidator
	sanitizer   Sanitizer
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64

	mu    sync.Mutex
	etags map[string]string
}

// NewImporter はImporterの新しいインスタンスを生成する。
func NewImporter(
	products repository.ProductRepository,
	categories repository.CategoryRepository,
	ssrfGuard SSRFValidator,
	sanitizer Sanitizer,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Importer {
	return &Importer{
		products:    products,
		categories:  categories,
		ssrfGuard:   ssrfGuard,
		sanitizer:   sanitizer,
		metrics:     m,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		etags:       make(map[string]string),
	}
}

// Import は指定URLのカタログを取り込む。
// URLが安全でない場合や内容が不正な場合はValidationErrorを返し、
// 取得自体に失敗した場合はErrImportFetchをラップしたエラーを返す。
func (i *Importer) Import(ctx context.Context, rawURL string) (*ImportResult, error) {
	start := time.Now()
	defer func() { i.metrics.RecordImportLatency(time.Since(start)) }()

	if err := i.ssrfGuard.ValidateURL(rawURL); err != nil {
		i.metrics.RecordCatalogImportFailure("ssrf")
		i.logger.Warn("カタログURLのSSRF検証に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewValidationError(fmt.Sprintf("カタログURLが不正です: %s", err.Error()))
	}

	doc, etag, notModified, err := i.fetch(ctx, rawURL)
	if err != nil {
		i.metrics.RecordCatalogImportFailure("fetch")
		i.logger.Error("カタログの取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if notModified {
		i.logger.Info("カタログは未変更です（304）", slog.String("url", rawURL))
		return &ImportResult{NotModified: true}, nil
	}

	if err := i.normalize(doc); err != nil {
		i.metrics.RecordCatalogImportFailure("invalid")
		return nil, err
	}

	if err := i.categories.Upsert(ctx, doc.Categories); err != nil {
		i.metrics.RecordCatalogImportFailure("store")
		return nil, fmt.Errorf("カテゴリの保存に失敗: %w", err)
	}
	if err := i.products.Upsert(ctx, doc.Products); err != nil {
		i.metrics.RecordCatalogImportFailure("store")
		return nil, fmt.Errorf("商品の保存に失敗: %w", err)
	}

	if etag != "" {
		i.setETag(rawURL, etag)
	}

	i.metrics.RecordCatalogImport(len(doc.Products), len(doc.Categories))
	i.logger.Info("カタログをインポートしました",
		slog.String("url", rawURL),
		slog.Int("products", len(doc.Products)),
		slog.Int("categories", len(doc.Categories)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return &ImportResult{Products: len(doc.Products), Categories: len(doc.Categories)}, nil
}

func (i *Importer) fetch(ctx context.Context, rawURL string) (*Document, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", false, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "TechShop/1.0 CatalogSync")
	req.Header.Set("Accept", "application/json")
	if etag := i.lastETag(rawURL); etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := i.ssrfGuard.NewSafeClient(i.timeout).Do(req)
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: %s", ErrImportFetch, err.Error())
	}
	defer resp.Body.Close()

	i.metrics.RecordCatalogFetchStatus(resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, "", true, nil
	case resp.StatusCode != http.StatusOK:
		return nil, "", false, fmt.Errorf("%w: HTTPステータス %d", ErrImportFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBodySize+1))
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: レスポンス読み取り失敗: %s", ErrImportFetch, err.Error())
	}
	if int64(len(body)) > i.maxBodySize {
		return nil, "", false, model.NewValidationError(fmt.Sprintf("カタログが上限サイズ %d バイトを超えています", i.maxBodySize))
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, "", false, model.NewValidationError(fmt.Sprintf("カタログJSONを解析できません: %s", err.Error()))
	}

	return &doc, resp.Header.Get("ETag"), false, nil
}

// normalize はテキストを無害化し、必須項目と値域を検証する。
func (i *Importer) normalize(doc *Document) error {
	for _, c := range doc.Categories {
		if c == nil || c.ID <= 0 {
			return model.NewValidationError("カテゴリIDは正の整数である必要があります")
		}
		c.Name = i.sanitizer.Sanitize(c.Name)
		c.Description = i.sanitizer.Sanitize(c.Description)
		c.Icon = i.sanitizer.Sanitize(c.Icon)
		c.Color = i.sanitizer.Sanitize(c.Color)
		if c.Name == "" {
			return model.NewValidationError(fmt.Sprintf("カテゴリ %d の名前が空です", c.ID))
		}
		if c.DiscountPercent < 0 || c.DiscountPercent > 100 {
			return model.NewValidationError(fmt.Sprintf("カテゴリ %d の割引率が範囲外です", c.ID))
		}
	}
	for _, p := range doc.Products {
		if p == nil || p.ID <= 0 {
			return model.NewValidationError("商品IDは正の整数である必要があります")
		}
		p.Name = i.sanitizer.Sanitize(p.Name)
		p.Description = i.sanitizer.Sanitize(p.Description)
		p.Category = i.sanitizer.Sanitize(p.Category)
		if p.Name == "" {
			return model.NewValidationError(fmt.Sprintf("商品 %d の名前が空です", p.ID))
		}
		if p.Price < 0 || p.Stock < 0 {
			return model.NewValidationError(fmt.Sprintf("商品 %d の価格または在庫が負の値です", p.ID))
		}
	}
	return nil
}

func (i *Importer) lastETag(rawURL string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.etags[rawURL]
}

func (i *Importer) setETag(rawURL, etag string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.etags[rawURL] = etag
}
