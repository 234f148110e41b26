// Package card はグリーティングカードの保存・履歴管理を提供する。
package card

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/hitoshi/greetcard/internal/metrics"
	"github.com/hitoshi/greetcard/internal/model"
	"github.com/hitoshi/greetcard/internal/repository"
	"github.com/hitoshi/greetcard/internal/security"
	"github.com/hitoshi/greetcard/internal/storage"
)

// MaxImagePixels はデコードを許可する画像の最大画素数（幅×高さ）。
const MaxImagePixels = 40_000_000

// 履歴一覧のページングの既定値と上限
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ImageFetcher は保存済み画像を取得するインターフェース。
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*security.RemoteImage, error)
}

// SaveInput はカード保存のリクエスト内容。
type SaveInput struct {
	ImageData    string          // base64画像。data URLのヘッダー付きでもよい
	Config       json.RawMessage // クライアント定義のカード設定（任意）
	BlessingText *string         // 祝福文（任意）
}

// Service はカード保存と履歴の参照・削除を行う。
type Service struct {
	repo    repository.CardHistoryRepository
	store   storage.ObjectStore
	fetcher ImageFetcher
	metrics metrics.MetricsCollector
	now     func() time.Time
	newID   func() uuid.UUID
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(repo repository.CardHistoryRepository, store storage.ObjectStore, fetcher ImageFetcher, mc metrics.MetricsCollector) *Service {
	return &Service{
		repo:    repo,
		store:   store,
		fetcher: fetcher,
		metrics: metrics.OrNop(mc),
		now:     time.Now,
		newID:   uuid.New,
	}
}

// Save は画像をデコードして原寸とサムネイルをストレージに保存し、履歴を作成する。
// アップロード後に履歴の書き込みが失敗した場合、アップロード済みのオブジェクトは残る。
func (s *Service) Save(ctx context.Context, userID string, in SaveInput) (*model.CardHistoryEntry, error) {
	entry, err := s.save(ctx, userID, in)
	if err != nil {
		s.metrics.RecordCardSave(metrics.OutcomeFailure)
		return nil, err
	}
	s.metrics.RecordCardSave(metrics.OutcomeSuccess)
	return entry, nil
}

func (s *Service) save(ctx context.Context, userID string, in SaveInput) (*model.CardHistoryEntry, error) {
	// 1. デコード（アップロード前に画像として読めることを確認する）
	raw, err := decodeImageData(in.ImageData)
	if err != nil {
		return nil, model.NewInvalidImageError(err)
	}
	img, original, err := decodeCardImage(raw)
	if err != nil {
		return nil, model.NewInvalidImageError(err)
	}

	cfg, err := normalizeConfig(in.Config)
	if err != nil {
		return nil, err
	}

	// 2. キーの決定
	now := s.now()
	shortID := strings.ReplaceAll(s.newID().String(), "-", "")[:8]
	originalKey, thumbnailKey := storage.CardKeys(userID, now, shortID)

	// 3. 原寸のアップロード
	imageURL, err := s.store.Put(ctx, originalKey, original, "image/png")
	if err != nil {
		return nil, saveError("原寸画像のアップロード", err)
	}

	// 4. サムネイルの生成とアップロード
	thumb, err := EncodeThumbnail(img)
	if err != nil {
		return nil, model.NewSaveFailedError("サムネイルの生成", err)
	}
	thumbnailURL, err := s.store.Put(ctx, thumbnailKey, thumb, "image/png")
	if err != nil {
		return nil, saveError("サムネイルのアップロード", err)
	}

	// 5. 履歴の作成
	entry := &model.CardHistoryEntry{
		ID:           s.newID().String(),
		UserID:       userID,
		ImageURL:     imageURL,
		ThumbnailURL: &thumbnailURL,
		Config:       cfg,
		BlessingText: in.BlessingText,
		CreatedAt:    now,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		slog.Error("card history insert failed after upload",
			slog.String("user_id", userID),
			slog.String("object_key", originalKey),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSaveFailedError("履歴の書き込み", err)
	}

	return entry, nil
}

// List はユーザーの履歴をcreated_at降順で返す。
// limitは1〜MaxListLimitに丸め、0以下はDefaultListLimitとする。負のoffsetは0とする。
func (s *Service) List(ctx context.Context, userID string, offset, limit int) (*model.CardHistoryPage, error) {
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	total, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count card history: %w", err)
	}
	items, err := s.repo.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list card history: %w", err)
	}
	if items == nil {
		items = []*model.CardHistoryEntry{}
	}

	return &model.CardHistoryPage{Items: items, Total: total}, nil
}

// Get はユーザーが所有する履歴を返す。存在しない場合や他ユーザーの履歴の場合はNotFound。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.CardHistoryEntry, error) {
	entry, err := s.repo.FindByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find card history: %w", err)
	}
	if entry == nil {
		return nil, model.NewHistoryNotFoundError(id)
	}
	return entry, nil
}

// Delete はユーザーが所有する履歴を削除する。
// ストレージ上の画像の削除はベストエフォートで、失敗しても履歴の削除は続行する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	// 1. 所有者の確認
	entry, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	// 2. ストレージの削除（エラーはログとメトリクスのみ）
	urls := []string{entry.ImageURL}
	if entry.ThumbnailURL != nil {
		urls = append(urls, *entry.ThumbnailURL)
	}
	for _, u := range urls {
		key, ok := s.store.KeyFromURL(u)
		if !ok {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.metrics.RecordStorageDeleteFailure()
			slog.Warn("failed to delete card object",
				slog.String("history_id", id),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	// 3. 履歴の削除
	deleted, err := s.repo.DeleteForUser(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete card history: %w", err)
	}
	if !deleted {
		return model.NewHistoryNotFoundError(id)
	}
	return nil
}

// Download はユーザーが所有するカードの原寸画像を取得する。
func (s *Service) Download(ctx context.Context, userID, id string) (*security.RemoteImage, error) {
	entry, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.fetcher.Fetch(ctx, entry.ImageURL)
}

// decodeImageData はdata URLのヘッダーを取り除いてbase64をデコードする。
func decodeImageData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if i := strings.IndexByte(data, ','); i >= 0 {
		data = data[i+1:]
	}
	if data == "" {
		return nil, errors.New("empty image data")
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		// パディングなしのbase64も受け付ける
		if raw, rawErr := base64.RawStdEncoding.DecodeString(data); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return raw, nil
}

// decodeCardImage は画像をデコードし、保存用のPNGバイト列とともに返す。
// 画素数がMaxImagePixelsを超える画像はヘッダーだけを読んで拒否する。
// PNG以外の形式はPNGに変換する（保存キーとダウンロード時のContent-Typeは常にPNG）。
func decodeCardImage(raw []byte) (image.Image, []byte, error) {
	// 1. ヘッダーから寸法を確認
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, nil, fmt.Errorf("invalid image size %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, nil, fmt.Errorf("image too large: %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxImagePixels)
	}

	// 2. 本体のデコード
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, err
	}
	if format == "png" {
		return img, raw, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, nil, err
	}
	return img, buf.Bytes(), nil
}

// normalizeConfig はカード設定を検証する。未指定やnullの場合はnilを返す。
func normalizeConfig(cfg json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(cfg)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, model.NewInvalidRequestError("configが不正なJSONです")
	}
	return cfg, nil
}

// saveError はストレージのエラーを保存失敗として返す。設定不足のエラーはそのまま返す。
func saveError(step string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeConfiguration {
		return apiErr
	}
	return model.NewSaveFailedError(step, err)
}
