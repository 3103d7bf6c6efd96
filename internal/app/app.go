package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/cardbinder/internal/auth"
	"github.com/hitoshi/cardbinder/internal/catalog"
	"github.com/hitoshi/cardbinder/internal/collection"
	"github.com/hitoshi/cardbinder/internal/config"
	"github.com/hitoshi/cardbinder/internal/database"
	"github.com/hitoshi/cardbinder/internal/handler"
	"github.com/hitoshi/cardbinder/internal/logger"
	"github.com/hitoshi/cardbinder/internal/metrics"
	"github.com/hitoshi/cardbinder/internal/middleware"
	"github.com/hitoshi/cardbinder/internal/repository"
	"github.com/hitoshi/cardbinder/internal/security"
	"github.com/hitoshi/cardbinder/internal/worker/reconcile"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成
	logger.SetupDefault(w, cfg.LogLevel)

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
		slog.String("catalog_base_url", cfg.CatalogBaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		action, ok := parseMigrateAction(args)
		if !ok {
			return fmt.Errorf("unknown migrate action: %q", args[1])
		}
		return runMigrate(cfg, action)
	case CommandReconcile:
		return runReconcile(cfg)
	default:
		return runServe(cfg)
	}
}

// newRegistry はアプリケーション用のPrometheusレジストリを生成する。
// Goランタイムとプロセスのメトリクスも登録する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// catalogConfig は設定値からカタログクライアントの設定を組み立てる。
func catalogConfig(cfg *config.Config) catalog.Config {
	return catalog.Config{
		BaseURL:         cfg.CatalogBaseURL,
		APIKey:          cfg.CatalogAPIKey,
		Timeout:         cfg.CatalogTimeout,
		PageSize:        cfg.CatalogPageSize,
		PageConcurrency: cfg.CatalogPageConcurrency,
		MaxRetryElapsed: cfg.CatalogMaxRetryElapsed,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	setRepo := repository.NewPostgresTrackedSetRepo(db)
	cardRepo := repository.NewPostgresCardRepo(db)

	// 3. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 4. 認証
	verifier, err := auth.NewPrivyVerifier(auth.PrivyConfig{
		AppID:           cfg.PrivyAppID,
		VerificationKey: cfg.PrivyVerificationKey,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}
	authService := auth.NewService(verifier, accountRepo)

	// 5. カタログとコレクション
	catalogClient := catalog.NewClient(catalogConfig(cfg), slog.Default(), collector)
	defer catalogClient.Close()

	collectionService := collection.NewService(
		setRepo, cardRepo, catalogClient, security.NewTextSanitizer(), collector,
	)

	// 6. ルーターの構築
	// configのレート制限はreq/min単位
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitSetAdd),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		AccountResolver:   authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthChecker:   db,
		MetricsGatherer: reg,

		AuthService: authService,

		CollectionService: collectionService,
		CatalogService:    collectionService,
	})

	// 7. HTTPサーバーの起動
	// カタログ取得を伴うセット登録があるため書き込みタイムアウトは長めにとる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// upは未適用のマイグレーションをすべて適用し、downは1段階戻す。
func runMigrate(cfg *config.Config, action migrateAction) error {
	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case migrateDown:
		if err := database.MigrateDown(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case migrateVersion:
		version, dirty, err := database.Version(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runReconcile は全セットの収集数をcardsテーブルから再集計する。
// SIGINTまたはSIGTERMで中断された場合はトランザクションごと破棄される。
func runReconcile(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	job := reconcile.NewReconcileJob(
		repository.NewPostgresTrackedSetRepo(db), slog.Default(), metrics.NopCollector{},
	)
	if _, err := job.Run(ctx); err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
