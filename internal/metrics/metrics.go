// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とワーカーから利用する。
type MetricsCollector interface {
	RecordOrderPlaced(total int64)
	RecordOrderStatusChange(status string)
	RecordCartMutation(op string)
	RecordLoginFailure()
	RecordCatalogFallback()
	RecordCatalogImport(products, categories int)
	RecordCatalogImportFailure(reason string)
	RecordCatalogFetchStatus(statusCode int)
	RecordHTTPStatus(statusCode int)
	RecordImportLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	ordersPlaced    prometheus.Counter
	orderRevenue    prometheus.Counter
	statusChanges   *prometheus.CounterVec
	cartMutations   *prometheus.CounterVec
	loginFailures   prometheus.Counter
	catalogFallback prometheus.Counter
	importedItems   *prometheus.CounterVec
	importFailures  *prometheus.CounterVec
	fetchStatus     *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	importLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "techshop_orders_placed_total",
			Help: "作成された注文の合計数",
		}),
		orderRevenue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "techshop_orders_placed_amount_total",
			Help: "作成された注文の合計金額（so'm）",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techshop_order_status_changes_total",
			Help: "遷移先ステータス別の注文ステータス変更数",
		}, []string{"status"}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techshop_cart_mutations_total",
			Help: "操作種別ごとのカート更新数",
		}, []string{"op"}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "techshop_login_failures_total",
			Help: "ログイン失敗の合計数",
		}),
		catalogFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "techshop_catalog_fallback_total",
			Help: "カタログ読み込み失敗により固定商品リストを返した回数",
		}),
		importedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techshop_catalog_imported_total",
			Help: "インポートで登録・更新されたカタログ要素の数",
		}, []string{"kind"}),
		importFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techshop_catalog_import_fail_total",
			Help: "原因別のカタログインポート失敗数",
		}, []string{"reason"}),
		fetchStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techshop_catalog_http_status_total",
			Help: "外部カタログ取得時のHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "techshop_http_responses_total",
			Help: "APIが返したHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		importLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "techshop_catalog_import_latency_seconds",
			Help:    "カタログインポートのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.ordersPlaced,
		c.orderRevenue,
		c.statusChanges,
		c.cartMutations,
		c.loginFailures,
		c.catalogFallback,
		c.importedItems,
		c.importFailures,
		c.fetchStatus,
		c.httpStatus,
		c.importLatency,
	)

	return c
}

// RecordOrderPlaced は注文作成を記録する。
func (c *Collector) RecordOrderPlaced(total int64) {
	c.ordersPlaced.Inc()
	c.orderRevenue.Add(float64(total))
}

// RecordOrderStatusChange はステータス変更を遷移先ごとに記録する。
func (c *Collector) RecordOrderStatusChange(status string) {
	c.statusChanges.WithLabelValues(status).Inc()
}

// RecordCartMutation はカート操作を記録する。opはadd, set, remove, clear, checkout。
func (c *Collector) RecordCartMutation(op string) {
	c.cartMutations.WithLabelValues(op).Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFailures.Inc()
}

// RecordCatalogFallback は固定商品リストでの応答を記録する。
func (c *Collector) RecordCatalogFallback() {
	c.catalogFallback.Inc()
}

// RecordCatalogImport はインポートした商品数・カテゴリ数を記録する。
func (c *Collector) RecordCatalogImport(products, categories int) {
	c.importedItems.WithLabelValues("product").Add(float64(products))
	c.importedItems.WithLabelValues("category").Add(float64(categories))
}

// RecordCatalogImportFailure はインポート失敗を記録する。
func (c *Collector) RecordCatalogImportFailure(reason string) {
	c.importFailures.WithLabelValues(reason).Inc()
}

// RecordCatalogFetchStatus は外部カタログ取得のHTTPステータスコードを記録する。
func (c *Collector) RecordCatalogFetchStatus(statusCode int) {
	c.fetchStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPStatus はAPIレスポンスのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordImportLatency はインポートのレイテンシを記録する。
func (c *Collector) RecordImportLatency(duration time.Duration) {
	c.importLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordOrderPlaced(int64)           {}
func (Nop) RecordOrderStatusChange(string)    {}
func (Nop) RecordCartMutation(string)         {}
func (Nop) RecordLoginFailure()               {}
func (Nop) RecordCatalogFallback()            {}
func (Nop) RecordCatalogImport(int, int)      {}
func (Nop) RecordCatalogImportFailure(string) {}
func (Nop) RecordCatalogFetchStatus(int)      {}
func (Nop) RecordHTTPStatus(int)              {}
func (Nop) RecordImportLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
