package model

import (
	"encoding/json"
	"time"
)

// CardHistoryEntry は保存済みグリーティングカード1件の履歴を表す。
// 必ず1人のUserに属し、所有者以外からは参照・削除できない。
type CardHistoryEntry struct {
	ID           string
	UserID       string
	ImageURL     string
	ThumbnailURL *string
	Config       json.RawMessage // レイアウトや表示オプションなど、クライアント定義の不透明なJSON
	BlessingText *string
	CreatedAt    time.Time
}

// CardHistoryPage は履歴一覧の1ページ分と、所有者の全件数を表す。
type CardHistoryPage struct {
	Items []*CardHistoryEntry
	Total int
}
