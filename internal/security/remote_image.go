package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/hitoshi/greetcard/internal/model"
)

// defaultImageContentType は上流がContent-Typeを返さない場合の既定値。
const defaultImageContentType = "image/png"

// RemoteImage は外部から取得した画像。
type RemoteImage struct {
	Data        []byte
	ContentType string
}

// RemoteImageFetcher はSSRF対策付きで外部の画像を取得する。
type RemoteImageFetcher struct {
	guard   SSRFGuard
	client  *http.Client
	maxSize int64
}

// NewRemoteImageFetcher はRemoteImageFetcherを生成する。
// maxSizeを超えるレスポンスはエラーとする。
func NewRemoteImageFetcher(guard SSRFGuard, timeout time.Duration, maxSize int64) *RemoteImageFetcher {
	return &RemoteImageFetcher{
		guard:   guard,
		client:  guard.NewSafeClient(timeout),
		maxSize: maxSize,
	}
}

// newRemoteImageFetcherWithClient はテスト用に任意のHTTPクライアントを使うRemoteImageFetcherを生成する。
func newRemoteImageFetcherWithClient(guard SSRFGuard, client *http.Client, maxSize int64) *RemoteImageFetcher {
	return &RemoteImageFetcher{guard: guard, client: client, maxSize: maxSize}
}

// Fetch はURLの画像を取得する。
// URLが不正な場合はInvalidRequestError、取得に失敗した場合はUpstreamErrorを返す。
func (f *RemoteImageFetcher) Fetch(ctx context.Context, rawURL string) (*RemoteImage, error) {
	// 1. URLの静的検証
	if err := f.guard.ValidateURL(rawURL); err != nil {
		if errors.Is(err, ErrInlineData) {
			return nil, model.NewInvalidRequestError("data URLはプロキシできません")
		}
		return nil, model.NewInvalidRequestError(fmt.Sprintf("URLが許可されていません: %v", err))
	}

	// 2. 取得
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewInvalidRequestError("URLが不正です")
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("画像取得", err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewUpstreamError("画像取得", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if resp.ContentLength > f.maxSize {
		return nil, model.NewUpstreamError("画像取得", fmt.Sprintf("response too large: %d bytes", resp.ContentLength), nil)
	}

	// 3. サイズ上限付きで読み込み（上限+1バイト読めたら超過）
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, model.NewUpstreamError("画像取得", "failed to read response", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, model.NewUpstreamError("画像取得", fmt.Sprintf("response exceeds %d bytes", f.maxSize), nil)
	}

	return &RemoteImage{Data: data, ContentType: contentTypeOrDefault(resp.Header.Get("Content-Type"))}, nil
}

// contentTypeOrDefault は妥当なContent-Typeであればそのまま、そうでなければ既定値を返す。
func contentTypeOrDefault(ct string) string {
	if ct == "" {
		return defaultImageContentType
	}
	if _, _, err := mime.ParseMediaType(ct); err != nil {
		return defaultImageContentType
	}
	return ct
}
