package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cardbinder/internal/metrics"
	"github.com/hitoshi/cardbinder/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	AccountResolver   middleware.AccountResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface

	// コレクションとカタログ
	CollectionService CollectionServiceInterface
	CatalogService    CatalogServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → CORS → BearerAuth → RateLimit(General)
//
// /health, /metrics, POST /api/auth, /api/catalog/* は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	collectionHandler := NewCollectionHandler(deps.CollectionService)
	catalogHandler := NewCatalogHandler(deps.CatalogService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Post("/api/auth", authHandler.Authenticate)

	r.Route("/api/catalog", func(r chi.Router) {
		r.Get("/sets", catalogHandler.ListSets)
		r.Get("/cards", catalogHandler.ListCards)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.AccountResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/auth/me", authHandler.Me)

		r.Route("/api/sets", func(r chi.Router) {
			r.Get("/", collectionHandler.ListSets)
			// セット登録はカタログ取得を伴うため専用レート制限を追加
			r.With(deps.RateLimiter.SetAddMiddleware()).Post("/", collectionHandler.AddSet)
			r.Delete("/{id}", collectionHandler.RemoveSet)
		})

		r.Route("/api/cards", func(r chi.Router) {
			r.Get("/", collectionHandler.ListCards)
			r.Post("/", collectionHandler.BulkInitCards)
			r.Patch("/{id}", collectionHandler.ToggleCard)
		})
	})

	return r
}
