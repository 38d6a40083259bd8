package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/techshop/internal/admin"
	"github.com/hitoshi/techshop/internal/auth"
	"github.com/hitoshi/techshop/internal/cart"
	"github.com/hitoshi/techshop/internal/catalog"
	"github.com/hitoshi/techshop/internal/config"
	"github.com/hitoshi/techshop/internal/database"
	"github.com/hitoshi/techshop/internal/handler"
	"github.com/hitoshi/techshop/internal/idgen"
	"github.com/hitoshi/techshop/internal/logger"
	"github.com/hitoshi/techshop/internal/metrics"
	"github.com/hitoshi/techshop/internal/middleware"
	"github.com/hitoshi/techshop/internal/order"
	"github.com/hitoshi/techshop/internal/repository"
	"github.com/hitoshi/techshop/internal/security"
	"github.com/hitoshi/techshop/internal/worker/catalogsync"
	"github.com/hitoshi/techshop/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開いて疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// rateLimiterConfig は設定のreq/min値をレートリミッター設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitLogin > 0 {
		rl.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
		rl.LoginBurst = cfg.RateLimitLogin
	}
	return rl
}

// newRegistry はショップのメトリクスとGo/プロセスメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// services はserveモードで使うサービス群。
type services struct {
	sessions *repository.PostgresSessionRepo
	users    *repository.PostgresUserRepo
	auth     *auth.Service
	catalog  *catalog.Service
	notifier *cart.Notifier
	carts    *cart.Manager
	orders   *order.Manager
	console  *admin.Console
}

// buildServices はリポジトリとドメインサービスをワイヤリングする。
func buildServices(db *sql.DB, cfg *config.Config, m metrics.MetricsCollector, log *slog.Logger) *services {
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	productRepo := repository.NewPostgresProductRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	cartRepo := repository.NewPostgresCartRepo(db)
	orderRepo := repository.NewPostgresOrderRepo(db)

	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	ids := idgen.New()

	catalogService := catalog.NewService(productRepo, categoryRepo, m, log)
	importer := catalog.NewImporter(
		productRepo, categoryRepo, ssrfGuard, sanitizer, m, log,
		cfg.ImportTimeout, cfg.ImportMaxSize,
	)

	notifier := cart.NewNotifier()
	cartManager := cart.NewManager(cartRepo, catalogService, notifier, m, log)
	orderManager := order.NewManager(orderRepo, ids, notifier, m, log)

	authService := auth.NewService(userRepo, sessionRepo, sanitizer, m, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		BcryptCost:    cfg.BcryptCost,
	})

	console := admin.NewConsole(admin.Deps{
		Users:      userRepo,
		Products:   productRepo,
		Categories: categoryRepo,
		OrderRepo:  orderRepo,
		Orders:     orderManager,
		Importer:   importer,
		IDs:        ids,
		Sanitizer:  sanitizer,
		BcryptCost: cfg.BcryptCost,
		Logger:     log,
	})

	return &services{
		sessions: sessionRepo,
		users:    userRepo,
		auth:     authService,
		catalog:  catalogService,
		notifier: notifier,
		carts:    cartManager,
		orders:   orderManager,
		console:  console,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
// newHTTPServer はAPIサーバーを生成する。
// リクエストのコンテキストはShutdown開始時にキャンセルされるため、
// SSEのような長時間接続もシャットダウンを待たせない。
// WriteTimeoutはSSEストリームではハンドラー側で解除する。
func newHTTPServer(addr string, h http.Handler) *http.Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancel)
	return server
}

func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	log := slog.Default()
	reg, collector := newRegistry()
	svc := buildServices(db, cfg, collector, log)

	// 初期データ投入（空のストアのみ）
	ctx := context.Background()
	if err := svc.catalog.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	if created, err := svc.auth.BootstrapAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	} else if !created && cfg.AdminEmail != "" {
		slog.Info("admin bootstrap skipped, users already exist")
	}

	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         log,
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
		StatusRecorder: collector,

		SessionFinder:      svc.sessions,
		UserFinder:         svc.users,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		SecurityHeaders: middleware.SecurityHeadersConfig{HSTS: cfg.HSTS},
		RateLimiter:     rateLimiter,

		AuthService: svc.auth,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		CatalogService: svc.catalog,
		CartService:    svc.carts,
		CartEvents:     svc.notifier,
		OrderService:   svc.orders,
		AdminConsole:   svc.console,
	})

	server := newHTTPServer(":"+cfg.ServerPort, router)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップと、CATALOG_SYNC_URLが設定されていればカタログ同期を実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
// workerCollector はworkerプロセス用のMetricsCollectorを返す。
// workerはHTTPを公開しないため何も記録しない。取り込み結果はログで追う。
func workerCollector() metrics.MetricsCollector {
	return metrics.Nop{}
}

func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	log := slog.Default()
	collector := workerCollector()

	sessionRepo := repository.NewPostgresSessionRepo(db)
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	if cfg.CatalogSyncURL != "" {
		importer := catalog.NewImporter(
			repository.NewPostgresProductRepo(db),
			repository.NewPostgresCategoryRepo(db),
			security.NewSSRFGuard(),
			security.NewContentSanitizer(),
			collector, log,
			cfg.ImportTimeout, cfg.ImportMaxSize,
		)
		syncer := catalogsync.NewSyncer(importer, cfg.CatalogSyncURL, cfg.CatalogSyncInterval, log)
		go syncer.Start(ctx)
	} else {
		slog.Info("catalog sync disabled (CATALOG_SYNC_URL is not set)")
	}

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cleanupJob.Interval),
		slog.String("catalog_sync_url", redactURL(cfg.CatalogSyncURL)),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", redactURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// redactURL はURLの認証情報を伏せた文字列を返す。解析できない場合は"***"を返す。
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
