package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/greetcard/internal/metrics"
	"github.com/hitoshi/greetcard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	Authenticator      middleware.TokenAuthenticator
	CORSAllowedOrigins []string
	Metrics            metrics.MetricsCollector
	MetricsHandler     http.Handler
	HealthChecker      HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 生成
	TextGenerator  TextGeneratorInterface
	ImageGenerator ImageGeneratorInterface
	ImageFetcher   ImageFetcherInterface

	// カード・履歴
	CardService CardServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Metrics → Logging → (BearerAuth)
//
// カードと履歴のルートのみBearer認証を必須とする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewLoggingMiddleware(logger))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	genHandler := NewGenerationHandler(deps.TextGenerator, deps.ImageGenerator, deps.ImageFetcher)
	cardHandler := NewCardHandler(deps.CardService)
	historyHandler := NewHistoryHandler(deps.CardService)

	// --- 認証不要のルート ---
	health := Health(deps.HealthChecker)
	r.Get("/health", health)
	r.Get("/api/health", health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Get("/logout", authHandler.Logout)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Route("/api/ai", func(r chi.Router) {
		r.Post("/generate-text", genHandler.GenerateText)
		r.Post("/generate-image", genHandler.GenerateImage)
		r.Get("/image-proxy", genHandler.ImageProxy)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Authenticator))

		r.Route("/api/card", func(r chi.Router) {
			r.Post("/save", cardHandler.Save)
			r.Get("/download/{id}", cardHandler.Download)
		})

		r.Route("/api/history", func(r chi.Router) {
			r.Get("/", historyHandler.List)
			r.Get("/{id}", historyHandler.Get)
			r.Delete("/{id}", historyHandler.Delete)
		})
	})

	return r
}
