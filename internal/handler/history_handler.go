package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/greetcard/internal/model"
)

// HistoryHandler はカード履歴の一覧・取得・削除のHTTPハンドラー。
type HistoryHandler struct {
	service CardServiceInterface
}

// NewHistoryHandler はHistoryHandlerを生成する。
func NewHistoryHandler(service CardServiceInterface) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// historyItemResponse は履歴1件のAPIレスポンス。
type historyItemResponse struct {
	ID           string          `json:"id"`
	ImageURL     string          `json:"image_url"`
	ThumbnailURL *string         `json:"thumbnail_url"`
	Config       json.RawMessage `json:"config"`
	BlessingText *string         `json:"blessing_text"`
	CreatedAt    time.Time       `json:"created_at"`
}

// historyListResponse は履歴一覧のAPIレスポンス。
type historyListResponse struct {
	Items []historyItemResponse `json:"items"`
	Total int                   `json:"total"`
}

// List はユーザーの履歴を新しい順に返す。
// GET /api/history?skip=0&limit=20 （offsetはskipの別名）
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	offsetParam := q.Get("skip")
	if offsetParam == "" {
		offsetParam = q.Get("offset")
	}
	offset, err := parseIntParam(offsetParam, 0)
	if err != nil {
		writeInvalidRequest(w, "skipは整数で指定してください")
		return
	}
	limit, err := parseIntParam(q.Get("limit"), 0)
	if err != nil {
		writeInvalidRequest(w, "limitは整数で指定してください")
		return
	}

	page, err := h.service.List(r.Context(), userID, offset, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	items := make([]historyItemResponse, 0, len(page.Items))
	for _, e := range page.Items {
		items = append(items, toHistoryItemResponse(e))
	}
	writeJSON(w, http.StatusOK, historyListResponse{Items: items, Total: page.Total})
}

// Get は履歴1件を返す。
// GET /api/history/{id}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toHistoryItemResponse(entry))
}

// Delete は履歴を削除する。
// DELETE /api/history/{id}
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func toHistoryItemResponse(e *model.CardHistoryEntry) historyItemResponse {
	return historyItemResponse{
		ID:           e.ID,
		ImageURL:     e.ImageURL,
		ThumbnailURL: e.ThumbnailURL,
		Config:       e.Config,
		BlessingText: e.BlessingText,
		CreatedAt:    e.CreatedAt,
	}
}

// parseIntParam はクエリパラメータを整数に変換する。空の場合はdefを返す。
func parseIntParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
