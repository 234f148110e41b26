package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/greetcard/internal/extract"
	"github.com/hitoshi/greetcard/internal/metrics"
	"github.com/hitoshi/greetcard/internal/model"
)

const (
	// defaultImageSize は設定もリクエストも寸法を指定しない場合のサイズ。
	defaultImageSize = "512x512"
	// maxImageResponseSize はb64_jsonを含むレスポンスの読み込み上限（32MB）。
	maxImageResponseSize = 32 << 20
	// maxErrorDetailLength はエラー詳細に含める上流レスポンス本文の最大長。
	maxErrorDetailLength = 500
)

// imageResultRules は画像生成レスポンスから画像参照を取り出すルール（優先順）。
var imageResultRules = []extract.Rule{
	{Name: "image_url", Path: "image_url"},
	{Name: "url", Path: "url"},
	{Name: "data.url", Path: "data.0.url"},
	{Name: "data.b64_json", Path: "data.0.b64_json"},
}

// imageErrorPaths は上流のエラーメッセージを取り出すパス（優先順）。
var imageErrorPaths = []string{"error.message", "error", "message"}

// PromptComposer はベースプロンプトから最終的なプロンプトを組み立てる。
type PromptComposer interface {
	Compose(base string) string
}

// ImageConfig は画像生成APIの接続設定。
type ImageConfig struct {
	APIURL         string
	APIKey         string
	Model          string
	Size           string // 設定されていればリクエストの寸法より優先する
	ResponseFormat string
	BasePrompt     string
	Timeout        time.Duration
}

// ImageRequest は画像生成リクエスト。
// Promptは受け付けるが使用しない（画像の雰囲気は運用者が設定するBasePromptで決まる）。
type ImageRequest struct {
	Prompt string
	Width  int
	Height int
}

type imageAPIRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format,omitempty"`
	N              int    `json:"n"`
}

// ImageGenerator は画像生成APIを同期的に1回だけ呼び出す。
type ImageGenerator struct {
	cfg      ImageConfig
	client   *http.Client
	composer PromptComposer
	metrics  metrics.MetricsCollector
}

// NewImageGenerator はImageGeneratorを生成する。
// mcがnilの場合はメトリクスを記録しない。
func NewImageGenerator(cfg ImageConfig, composer PromptComposer, mc metrics.MetricsCollector) *ImageGenerator {
	return &ImageGenerator{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		composer: composer,
		metrics:  metrics.OrNop(mc),
	}
}

// Generate は画像を1枚生成し、画像URLまたはbase64データを返す。
func (g *ImageGenerator) Generate(ctx context.Context, req ImageRequest) (string, error) {
	// 1. 設定の確認
	if g.cfg.APIURL == "" {
		return "", model.NewConfigurationError("AI_IMAGE_API_URL")
	}
	if g.cfg.APIKey == "" {
		return "", model.NewConfigurationError("AI_IMAGE_API_KEY")
	}

	if req.Prompt != "" {
		slog.Debug("client prompt ignored for image generation", slog.String("prompt", req.Prompt))
	}

	// 2. リクエストの組み立て
	body, err := json.Marshal(imageAPIRequest{
		Model:          g.cfg.Model,
		Prompt:         g.composer.Compose(g.cfg.BasePrompt),
		Size:           g.resolveSize(req.Width, req.Height),
		ResponseFormat: g.cfg.ResponseFormat,
		N:              1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal image request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", model.NewConfigurationError("AI_IMAGE_API_URL")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	// 3. 呼び出し（再試行なし）
	start := time.Now()
	result, err := g.do(httpReq)
	if err != nil {
		g.record(metrics.OutcomeFailure, start)
		slog.Error("image generation failed", slog.String("error", err.Error()))
		return "", err
	}

	g.record(metrics.OutcomeSuccess, start)
	return result, nil
}

// do はリクエストを送信し、レスポンスを分類する。
func (g *ImageGenerator) do(req *http.Request) (string, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return "", model.NewUpstreamError("画像生成API", err.Error(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageResponseSize))
	if err != nil {
		return "", model.NewUpstreamError("画像生成API", "failed to read response", err)
	}

	// エラーレスポンスの判定: 非2xx、または2xxでもerrorフィールドを含む場合
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || extract.Exists(data, "error") {
		detail := extract.String(data, imageErrorPaths...)
		if detail == "" {
			detail = fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(data), maxErrorDetailLength))
		}
		return "", model.NewUpstreamError("画像生成API", detail, nil)
	}

	m, ok := extract.First(data, imageResultRules...)
	if !ok {
		return "", model.NewUpstreamError("画像生成API", "unrecognized response format", nil)
	}
	return m.Value, nil
}

// resolveSize は画像サイズを決定する。設定値 > リクエストの寸法 > 既定値 の順。
func (g *ImageGenerator) resolveSize(width, height int) string {
	if g.cfg.Size != "" {
		return g.cfg.Size
	}
	if width > 0 && height > 0 {
		return fmt.Sprintf("%dx%d", width, height)
	}
	return defaultImageSize
}

func (g *ImageGenerator) record(outcome string, start time.Time) {
	g.metrics.RecordGeneration(metrics.KindImage, outcome, time.Since(start))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
