package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/greetcard/internal/card"
	"github.com/hitoshi/greetcard/internal/middleware"
	"github.com/hitoshi/greetcard/internal/model"
	"github.com/hitoshi/greetcard/internal/security"
)

// maxCardBodyBytes はカード保存リクエストのボディサイズ上限（20MiB）。
const maxCardBodyBytes = 20 << 20

// CardServiceInterface はカード・履歴ハンドラーが必要とするサービスインターフェース。
type CardServiceInterface interface {
	Save(ctx context.Context, userID string, in card.SaveInput) (*model.CardHistoryEntry, error)
	List(ctx context.Context, userID string, offset, limit int) (*model.CardHistoryPage, error)
	Get(ctx context.Context, userID, id string) (*model.CardHistoryEntry, error)
	Delete(ctx context.Context, userID, id string) error
	Download(ctx context.Context, userID, id string) (*security.RemoteImage, error)
}

// CardHandler はカード保存・ダウンロードのHTTPハンドラー。
type CardHandler struct {
	service CardServiceInterface
}

// NewCardHandler はCardHandlerを生成する。
func NewCardHandler(service CardServiceInterface) *CardHandler {
	return &CardHandler{service: service}
}

// saveCardRequest はカード保存リクエストのボディ。
type saveCardRequest struct {
	ImageData    string          `json:"image_data"`
	Config       json.RawMessage `json:"config"`
	BlessingText *string         `json:"blessing_text"`
}

// saveCardResponse はカード保存のAPIレスポンス。
type saveCardResponse struct {
	ID       string `json:"id"`
	ImageURL string `json:"image_url"`
}

// Save はカード画像を保存し、履歴を作成する。
// POST /api/card/save
func (h *CardHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCardBodyBytes)
	var req saveCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge,
				model.NewInvalidRequestError(fmt.Sprintf("リクエストが大きすぎます（上限 %d バイト）", tooLarge.Limit)))
			return
		}
		writeInvalidRequest(w, "リクエストボディが不正なJSONです")
		return
	}
	if strings.TrimSpace(req.ImageData) == "" {
		writeInvalidRequest(w, "image_dataを指定してください")
		return
	}

	entry, err := h.service.Save(r.Context(), userID, card.SaveInput{
		ImageData:    req.ImageData,
		Config:       req.Config,
		BlessingText: req.BlessingText,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, saveCardResponse{ID: entry.ID, ImageURL: entry.ImageURL})
}

// Download は所有するカードの原寸画像を添付ファイルとして返す。
// GET /api/card/download/{id}
func (h *CardHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	img, err := h.service.Download(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// 保存時のキーは常に.pngのため、Content-Typeもimage/pngに揃える
	img.ContentType = "image/png"
	writeImage(w, img, fmt.Sprintf("attachment; filename=card_%s.png", id))
}

// requireUserID はコンテキストからユーザーIDを取得する。取得できない場合は401を書き込む。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationError("トークンがありません", nil))
		return "", false
	}
	return userID, true
}
