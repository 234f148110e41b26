package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/greetcard/internal/generation"
	"github.com/hitoshi/greetcard/internal/security"
)

// maxGenerationBodyBytes は生成リクエストのボディサイズ上限。
const maxGenerationBodyBytes = 64 << 10

// TextGeneratorInterface は祝福文の生成に必要なインターフェース。
type TextGeneratorInterface interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ImageGeneratorInterface は背景画像の生成に必要なインターフェース。
type ImageGeneratorInterface interface {
	Generate(ctx context.Context, req generation.ImageRequest) (string, error)
}

// ImageFetcherInterface は画像プロキシに必要なインターフェース。
type ImageFetcherInterface interface {
	Fetch(ctx context.Context, rawURL string) (*security.RemoteImage, error)
}

// GenerationHandler はAI生成と画像プロキシのHTTPハンドラー。
type GenerationHandler struct {
	text    TextGeneratorInterface
	image   ImageGeneratorInterface
	fetcher ImageFetcherInterface
}

// NewGenerationHandler はGenerationHandlerを生成する。
func NewGenerationHandler(text TextGeneratorInterface, image ImageGeneratorInterface, fetcher ImageFetcherInterface) *GenerationHandler {
	return &GenerationHandler{text: text, image: image, fetcher: fetcher}
}

type generateTextRequest struct {
	Prompt string `json:"prompt"`
}

type generateTextResponse struct {
	Text string `json:"text"`
}

type generateImageRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type generateImageResponse struct {
	ImageURL string `json:"image_url"`
}

// GenerateText は祝福文を生成する。ボディは省略可能。
// POST /api/ai/generate-text
func (h *GenerationHandler) GenerateText(w http.ResponseWriter, r *http.Request) {
	var req generateTextRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeInvalidRequest(w, "リクエストボディが不正なJSONです")
		return
	}

	text, err := h.text.Generate(r.Context(), req.Prompt)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, generateTextResponse{Text: text})
}

// GenerateImage は背景画像を生成し、URLまたはbase64データを返す。
// POST /api/ai/generate-image
func (h *GenerationHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req generateImageRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeInvalidRequest(w, "リクエストボディが不正なJSONです")
		return
	}
	if req.Width < 0 || req.Height < 0 {
		writeInvalidRequest(w, "width/heightは0以上で指定してください")
		return
	}

	imageURL, err := h.image.Generate(r.Context(), generation.ImageRequest{
		Prompt: req.Prompt,
		Width:  req.Width,
		Height: req.Height,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, generateImageResponse{ImageURL: imageURL})
}

// ImageProxy は外部の画像を取得してそのまま返す。
// GET /api/ai/image-proxy?url=xxx
func (h *GenerationHandler) ImageProxy(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeInvalidRequest(w, "urlを指定してください")
		return
	}

	img, err := h.fetcher.Fetch(r.Context(), rawURL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeImage(w, img, "")
}

// writeImage は画像をレスポンスとして書き込む。dispositionが空でなければContent-Dispositionを付ける。
func writeImage(w http.ResponseWriter, img *security.RemoteImage, disposition string) {
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	if disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		slog.Warn("failed to write image response", slog.String("error", err.Error()))
	}
}

// decodeOptionalJSON はボディをJSONとしてデコードする。空のボディはエラーにしない。
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxGenerationBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
