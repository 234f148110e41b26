package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/hitoshi/greetcard/internal/model"
)

// OSSConfig はAliyun OSSの接続設定。
type OSSConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	Endpoint        string // 例: oss-cn-shanghai.aliyuncs.com（スキームは省略可）
	BucketName      string
}

// bucketAPI は*oss.Bucketのうち本パッケージが使う操作。
type bucketAPI interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
	DeleteObject(objectKey string, options ...oss.Option) error
}

// OSSStore はAliyun OSSを使ったObjectStoreの実装。
// 設定が不足している場合も生成は成功し、操作時にConfigurationErrorを返す。
type OSSStore struct {
	bucketName string
	host       string
	bucket     bucketAPI
	initErr    error
}

// NewOSSStore はOSSStoreを生成する。
func NewOSSStore(cfg OSSConfig) *OSSStore {
	s := &OSSStore{bucketName: cfg.BucketName, host: endpointHost(cfg.Endpoint)}

	// 1. 必須設定の確認
	for _, required := range []struct{ name, value string }{
		{"OSS_ACCESS_KEY_ID", cfg.AccessKeyID},
		{"OSS_ACCESS_KEY_SECRET", cfg.AccessKeySecret},
		{"OSS_ENDPOINT", cfg.Endpoint},
		{"OSS_BUCKET_NAME", cfg.BucketName},
	} {
		if required.value == "" {
			s.initErr = model.NewConfigurationError(required.name)
			return s
		}
	}

	// 2. クライアントとバケットハンドルの生成（通信は発生しない）
	client, err := oss.New("https://"+s.host, cfg.AccessKeyID, cfg.AccessKeySecret, oss.Timeout(10, 120))
	if err != nil {
		slog.Error("failed to create OSS client", slog.String("error", err.Error()))
		s.initErr = model.NewConfigurationError("OSS_ENDPOINT")
		return s
	}
	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		slog.Error("failed to open OSS bucket", slog.String("error", err.Error()))
		s.initErr = model.NewConfigurationError("OSS_BUCKET_NAME")
		return s
	}
	s.bucket = bucket
	return s
}

// newOSSStoreWithBucket は任意のbucketAPIを使うOSSStoreを生成する。
func newOSSStoreWithBucket(bucketName, endpoint string, bucket bucketAPI) *OSSStore {
	return &OSSStore{bucketName: bucketName, host: endpointHost(endpoint), bucket: bucket}
}

// Put はdataをkeyに保存し、公開URLを返す。
func (s *OSSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.initErr != nil {
		return "", s.initErr
	}
	err := s.bucket.PutObject(key, bytes.NewReader(data),
		oss.ContentType(contentType),
		oss.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return s.URL(key), nil
}

// Delete はkeyのオブジェクトを削除する。存在しないキーの削除は成功として扱われる。
func (s *OSSStore) Delete(ctx context.Context, key string) error {
	if s.initErr != nil {
		return s.initErr
	}
	if err := s.bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// URL はkeyの公開URL https://<bucket>.<endpoint>/<key> を返す。
func (s *OSSStore) URL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", s.bucketName, s.host, key)
}

// KeyFromURL は公開URLからkeyを取り出す。
func (s *OSSStore) KeyFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || s.bucketName == "" || s.host == "" {
		return "", false
	}
	if !strings.EqualFold(u.Host, s.bucketName+"."+s.host) {
		return "", false
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", false
	}
	return key, true
}

// endpointHost はエンドポイント設定からスキームと末尾のスラッシュを除いたホスト名を返す。
func endpointHost(endpoint string) string {
	host := strings.TrimSpace(endpoint)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

// compile-time interface check
var _ ObjectStore = (*OSSStore)(nil)
