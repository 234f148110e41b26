// Package app は設定の読み込みから依存関係のワイヤリング、サブコマンドの実行までを担う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/greetcard/internal/auth"
	"github.com/hitoshi/greetcard/internal/card"
	"github.com/hitoshi/greetcard/internal/config"
	"github.com/hitoshi/greetcard/internal/database"
	"github.com/hitoshi/greetcard/internal/generation"
	"github.com/hitoshi/greetcard/internal/handler"
	"github.com/hitoshi/greetcard/internal/logger"
	"github.com/hitoshi/greetcard/internal/metrics"
	"github.com/hitoshi/greetcard/internal/prompt"
	"github.com/hitoshi/greetcard/internal/repository"
	"github.com/hitoshi/greetcard/internal/security"
	"github.com/hitoshi/greetcard/internal/storage"
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

	// 3. LOG_LEVELを反映してロガーを再設定
	logger.SetupDefault(w, cfg.SlogLevel())

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

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
		slog.String("frontend_url", cfg.FrontendURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
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

	if err := database.Ping(context.Background(), db); err != nil {
		return err
	}

	slog.Info("database connection established")

	// 2. ルーターの構築
	router := newRouter(cfg, db)

	// 3. HTTPサーバーの起動
	// 画像生成は最大で数分かかるため、WriteTimeoutは生成タイムアウトより長くとる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ImageTimeout + 30*time.Second,
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
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
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

// newRouter は設定とDB接続から全サービスを組み立て、ルーターを返す。
func newRouter(cfg *config.Config, db *sql.DB) http.Handler {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(registry)

	// 2. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	historyRepo := repository.NewPostgresCardHistoryRepo(db)

	// 3. 認証
	oauthProvider := auth.NewOAuth2Provider(auth.OAuth2Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		AuthURL:      cfg.OAuthAuthorizationURL,
		TokenURL:     cfg.OAuthTokenURL,
		UserInfoURL:  cfg.OAuthUserInfoURL,
		RedirectURL:  cfg.OAuthRedirectURL,
		Scopes:       cfg.OAuthScopes,
	})
	authService := auth.NewService(oauthProvider, userRepo, auth.NewTokenIssuer(cfg.SessionSecret, cfg.SessionTTL))

	// 4. 生成
	textGen := generation.NewTextGenerator(generation.TextConfig{
		APIURL:       cfg.TextAPIURL,
		APIKey:       cfg.TextAPIKey,
		Model:        cfg.TextModel,
		SystemPrompt: cfg.BlessingSystemPrompt,
	}, mc)
	imageGen := generation.NewImageGenerator(generation.ImageConfig{
		APIURL:         cfg.ImageAPIURL,
		APIKey:         cfg.ImageAPIKey,
		Model:          cfg.ImageModel,
		Size:           cfg.ImageSize,
		ResponseFormat: cfg.ImageResponseFormat,
		BasePrompt:     cfg.ImagePrompt,
		Timeout:        cfg.ImageTimeout,
	}, prompt.NewComposer(), mc)

	// 5. 外部画像の取得とストレージ
	fetcher := security.NewRemoteImageFetcher(security.NewSSRFGuard(), cfg.ProxyTimeout, cfg.ProxyMaxSize)
	store := storage.NewOSSStore(storage.OSSConfig{
		AccessKeyID:     cfg.OSSAccessKeyID,
		AccessKeySecret: cfg.OSSAccessKeySecret,
		Endpoint:        cfg.OSSEndpoint,
		BucketName:      cfg.OSSBucketName,
	})
	cardService := card.NewService(historyRepo, store, fetcher, mc)

	// 6. ルーター
	return handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		Authenticator:      authService,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:            mc,
		MetricsHandler:     metrics.Handler(registry),
		HealthChecker:      db,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			CookieSecure: isHTTPS(cfg.FrontendURL),
		},

		TextGenerator:  textGen,
		ImageGenerator: imageGen,
		ImageFetcher:   fetcher,

		CardService: cardService,
	})
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

// isHTTPS はURLのスキームがhttpsかどうかを返す。
func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https"
}
