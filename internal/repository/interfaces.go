// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/greetcard/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByProviderSubject はIdPのsubject IDでユーザーを検索する。見つからない場合はnilを返す。
	FindByProviderSubject(ctx context.Context, subject string) (*model.User, error)

	// CreateIfAbsent はユーザーを作成し、保存済みのユーザーを返す。
	// 同じsubjectのユーザーが既に存在する場合は作成せず、既存のユーザーを返す（先勝ち）。
	CreateIfAbsent(ctx context.Context, user *model.User) (*model.User, error)
}

// CardHistoryRepository はカード履歴の永続化インターフェース。
// 参照・削除系のメソッドは必ず所有者のユーザーIDで絞り込む。
type CardHistoryRepository interface {
	// Create は履歴を1件作成する。IDとCreatedAtは呼び出し側で設定する。
	Create(ctx context.Context, entry *model.CardHistoryEntry) error

	// FindByIDForUser は指定ユーザーが所有する履歴を取得する。
	// 存在しない場合、他ユーザーの履歴の場合、IDの形式が不正な場合はnilを返す。
	FindByIDForUser(ctx context.Context, id, userID string) (*model.CardHistoryEntry, error)

	// ListByUser はユーザーの履歴をcreated_at降順でoffset/limit分取得する。
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.CardHistoryEntry, error)

	// CountByUser はユーザーの履歴件数を返す。
	CountByUser(ctx context.Context, userID string) (int, error)

	// DeleteForUser は指定ユーザーが所有する履歴を削除する。削除した場合はtrueを返す。
	DeleteForUser(ctx context.Context, id, userID string) (bool, error)
}
