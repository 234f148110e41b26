// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// defaultImagePrompt は画像生成に使うベースプロンプトの既定値。
// 画像の雰囲気は運用者が管理するため、クライアントから渡されたプロンプトは使わない。
const defaultImagePrompt = "Chinese New Year greeting card background, traditional Chinese style, golden clouds, red lanterns, festive atmosphere, elegant and auspicious, high quality"

// defaultBlessingSystemPrompt は祝福文生成のシステム指示の既定値。
const defaultBlessingSystemPrompt = "你是一位擅长写新年祝福语的诗人。请只输出一句简短、优美、富有诗意的新年祝福语，不超过30个字，只占一行，不要输出任何解释、标点以外的符号或多余内容。"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Session
	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	// Server
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	// OAuth2 SSO
	OAuthClientID         string   `env:"OAUTH2_CLIENT_ID"`
	OAuthClientSecret     string   `env:"OAUTH2_CLIENT_SECRET"`
	OAuthAuthorizationURL string   `env:"OAUTH2_AUTHORIZATION_URL"`
	OAuthTokenURL         string   `env:"OAUTH2_TOKEN_URL"`
	OAuthUserInfoURL      string   `env:"OAUTH2_USERINFO_URL"`
	OAuthRedirectURL      string   `env:"OAUTH2_REDIRECT_URI" envDefault:"http://localhost:5173/auth/callback"`
	OAuthScopes           []string `env:"OAUTH2_SCOPES" envSeparator:"," envDefault:"openid,profile,email"`

	// Text generation
	TextAPIURL           string `env:"AI_TEXT_API_URL"`
	TextAPIKey           string `env:"AI_TEXT_API_KEY"`
	TextModel            string `env:"AI_TEXT_MODEL" envDefault:"gpt-4o-mini"`
	BlessingSystemPrompt string `env:"BLESSING_SYSTEM_PROMPT"`

	// Image generation
	ImageAPIURL         string        `env:"AI_IMAGE_API_URL"`
	ImageAPIKey         string        `env:"AI_IMAGE_API_KEY"`
	ImageModel          string        `env:"AI_IMAGE_MODEL" envDefault:"ecnu-image"`
	ImageSize           string        `env:"AI_IMAGE_SIZE" envDefault:"720x1280"`
	ImageResponseFormat string        `env:"AI_IMAGE_RESPONSE_FORMAT" envDefault:"url"`
	ImageTimeout        time.Duration `env:"AI_IMAGE_TIMEOUT" envDefault:"2m"`
	ImagePrompt         string        `env:"IMAGE_PROMPT"`

	// Object storage
	OSSAccessKeyID     string `env:"OSS_ACCESS_KEY_ID"`
	OSSAccessKeySecret string `env:"OSS_ACCESS_KEY_SECRET"`
	OSSEndpoint        string `env:"OSS_ENDPOINT"`
	OSSBucketName      string `env:"OSS_BUCKET_NAME"`

	// Image proxy
	ProxyTimeout time.Duration `env:"PROXY_TIMEOUT" envDefault:"30s"`
	ProxyMaxSize int64         `env:"PROXY_MAX_SIZE" envDefault:"20971520"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
// AI・ストレージ・SSOの資格情報は起動時には必須とせず、利用時にConfigurationErrorとして扱う。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		slog.Warn("failed to load .env file", slog.String("error", err.Error()))
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Required fields
	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.ImagePrompt == "" {
		cfg.ImagePrompt = defaultImagePrompt
	}
	if cfg.BlessingSystemPrompt == "" {
		cfg.BlessingSystemPrompt = defaultBlessingSystemPrompt
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	cfg.CORSAllowedOrigins = mergeOrigins(cfg.FrontendURL, cfg.CORSAllowedOrigins)

	return cfg, nil
}

// SlogLevel はLOG_LEVELの設定文字列をslog.Levelに変換する。未知の値はInfoとして扱う。
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// mergeOrigins はフロントエンドURLを先頭にしたCORS許可オリジンの重複なしリストを返す。
func mergeOrigins(frontend string, origins []string) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, o := range append([]string{frontend}, origins...) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		merged = append(merged, o)
	}
	return merged
}

// isNotExist は.envファイルが存在しないことによるエラーかどうかを判定する。
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
