package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/techshop/internal/middleware"
)

// HealthChecker はヘルスチェックでDB疎通を確認するためのインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger         *slog.Logger
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	StatusRecorder middleware.StatusRecorder

	// ミドルウェア依存
	SessionFinder      middleware.SessionFinder
	UserFinder         middleware.UserFinder
	CORSAllowedOrigins []string
	CSRF               middleware.CSRFConfig
	SecurityHeaders    middleware.SecurityHeadersConfig
	RateLimiter        *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	CatalogService CatalogServiceInterface
	CartService    CartServiceInterface
	CartEvents     CartSubscriber
	OrderService   OrderServiceInterface
	AdminConsole   AdminConsoleInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → CSRF
//	  → (Session | OptionalSession) → RateLimit(General) → Admin
//
// /health と /metrics はCSRF以降のチェーンの外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecurityHeaders))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	catalogHandler := NewCatalogHandler(deps.CatalogService)
	cartHandler := NewCartHandler(deps.CartService, deps.CartEvents)
	orderHandler := NewOrderHandler(deps.OrderService)
	adminHandler := NewAdminHandler(deps.AdminConsole)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		// 認証ルート。新規登録とログインはIP単位の専用レート制限をかける
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/register", authHandler.Register)
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// --- 未ログインでも閲覧できるルート（ログイン時は割引価格） ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/api/products", catalogHandler.ListProducts)
			r.Get("/api/products/{id}", catalogHandler.GetProduct)
			r.Get("/api/categories", catalogHandler.ListCategories)
		})

		// --- ログインが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Put("/api/profile", authHandler.UpdateProfile)

			r.Route("/api/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Get("/events", cartHandler.Events)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{productID}", cartHandler.SetQuantity)
				r.Delete("/items/{productID}", cartHandler.RemoveItem)
			})

			r.Route("/api/orders", func(r chi.Router) {
				r.Post("/", orderHandler.PlaceOrder)
				r.Get("/", orderHandler.ListOrders)
				r.Get("/{id}", orderHandler.GetOrder)
				r.Post("/{id}/cancel", orderHandler.CancelOrder)
			})

			// 管理画面
			r.Route("/api/admin", func(r chi.Router) {
				r.Use(middleware.NewAdminMiddleware(deps.UserFinder))

				r.Get("/stats", adminHandler.Stats)
				r.Post("/catalog/import", adminHandler.ImportCatalog)

				r.Route("/users", func(r chi.Router) {
					r.Get("/", adminHandler.ListUsers)
					r.Post("/", adminHandler.CreateUser)
					r.Get("/{id}", adminHandler.GetUser)
					r.Put("/{id}", adminHandler.UpdateUser)
					r.Delete("/{id}", adminHandler.DeleteUser)
				})
				r.Route("/products", func(r chi.Router) {
					r.Get("/", adminHandler.ListProducts)
					r.Post("/", adminHandler.CreateProduct)
					r.Put("/{id}", adminHandler.UpdateProduct)
					r.Delete("/{id}", adminHandler.DeleteProduct)
				})
				r.Route("/categories", func(r chi.Router) {
					r.Get("/", adminHandler.ListCategories)
					r.Post("/", adminHandler.CreateCategory)
					r.Put("/{id}", adminHandler.UpdateCategory)
					r.Delete("/{id}", adminHandler.DeleteCategory)
				})
				r.Route("/orders", func(r chi.Router) {
					r.Get("/", adminHandler.ListOrders)
					r.Get("/{id}", adminHandler.GetOrder)
					r.Put("/{id}/status", adminHandler.SetOrderStatus)
				})
			})
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
