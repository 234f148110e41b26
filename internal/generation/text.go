// Package generation は外部のテキスト生成・画像生成APIを呼び出し、
// ベンダーごとに異なるレスポンスを単一の戻り値に正規化する。
package generation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hitoshi/greetcard/internal/metrics"
	"github.com/hitoshi/greetcard/internal/model"
)

// defaultBlessingUserPrompt は呼び出し側がプロンプトを指定しなかった場合のユーザーメッセージ。
const defaultBlessingUserPrompt = "请生成一条新年祝福语"

const (
	blessingMaxTokens   = 100
	blessingTemperature = 0.8
)

// TextConfig はテキスト生成APIの接続設定。
type TextConfig struct {
	APIURL       string
	APIKey       string
	Model        string
	SystemPrompt string
}

// TextGenerator はchat completions互換のエンドポイントで祝福文を生成する。
type TextGenerator struct {
	cfg     TextConfig
	client  *openai.Client
	metrics metrics.MetricsCollector
}

// NewTextGenerator はTextGeneratorを生成する。
// APIURLが未設定でも生成は成功し、Generate呼び出し時にConfigurationErrorを返す。
// mcがnilの場合はメトリクスを記録しない。
func NewTextGenerator(cfg TextConfig, mc metrics.MetricsCollector) *TextGenerator {
	g := &TextGenerator{cfg: cfg, metrics: metrics.OrNop(mc)}
	if cfg.APIURL != "" {
		client := openai.NewClient(
			option.WithBaseURL(strings.TrimRight(cfg.APIURL, "/")+"/"),
			option.WithAPIKey(cfg.APIKey),
			// 再試行は呼び出し側の判断に任せる
			option.WithMaxRetries(0),
		)
		g.client = &client
	}
	return g
}

// Generate は祝福文を1件生成して返す。promptが空の場合は既定のユーザーメッセージを使う。
// 戻り値は前後の空白を除いた最初の空でない行。
func (g *TextGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	// 1. 設定の確認
	if g.client == nil {
		return "", model.NewConfigurationError("AI_TEXT_API_URL")
	}
	if g.cfg.Model == "" {
		return "", model.NewConfigurationError("AI_TEXT_MODEL")
	}

	userPrompt := strings.TrimSpace(prompt)
	if userPrompt == "" {
		userPrompt = defaultBlessingUserPrompt
	}

	// 2. chat completionsの呼び出し
	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.cfg.SystemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxTokens:   openai.Int(blessingMaxTokens),
		Temperature: openai.Float(blessingTemperature),
	})
	if err != nil {
		g.record(metrics.OutcomeFailure, start)
		slog.Error("text generation request failed", slog.String("error", err.Error()))
		return "", model.NewUpstreamError("テキスト生成API", err.Error(), err)
	}

	// 3. レスポンスの検証
	if len(resp.Choices) == 0 {
		g.record(metrics.OutcomeFailure, start)
		return "", model.NewUpstreamError("テキスト生成API", "no choices returned", nil)
	}
	text := firstLine(resp.Choices[0].Message.Content)
	if text == "" {
		g.record(metrics.OutcomeFailure, start)
		return "", model.NewUpstreamError("テキスト生成API", "empty content", nil)
	}

	g.record(metrics.OutcomeSuccess, start)
	return text, nil
}

func (g *TextGenerator) record(outcome string, start time.Time) {
	g.metrics.RecordGeneration(metrics.KindText, outcome, time.Since(start))
}

// firstLine は前後の空白を除いた最初の空でない行を返す。
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
