// Package storage はカード画像を保存するオブジェクトストレージを提供する。
package storage

import (
	"context"
	"fmt"
	"time"
)

// ObjectStore はキー単位でバイナリを保存・削除するオブジェクトストレージのインターフェース。
type ObjectStore interface {
	// Put はdataをkeyに保存し、公開URLを返す。
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete はkeyのオブジェクトを削除する。
	Delete(ctx context.Context, key string) error
	// URL はkeyの公開URLを返す。
	URL(key string) string
	// KeyFromURL は公開URLからkeyを取り出す。このストレージのURLでない場合はokがfalseになる。
	KeyFromURL(rawURL string) (key string, ok bool)
}

// CardKeys はカード画像の原寸とサムネイルのキーを返す。
// キーはユーザーID・保存日・短いランダムIDで名前空間を分ける。
func CardKeys(userID string, now time.Time, shortID string) (original, thumbnail string) {
	prefix := fmt.Sprintf("cards/%s/%s/%s", userID, now.Format("20060102"), shortID)
	return prefix + ".png", prefix + "_thumb.png"
}
