package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/greetcard/internal/model"
)

// pgInvalidTextRepresentation はUUID列に不正な文字列を渡した場合のSQLSTATE。
const pgInvalidTextRepresentation = "22P02"

// PostgresCardHistoryRepo はPostgreSQLを使用したカード履歴リポジトリ。
type PostgresCardHistoryRepo struct {
	db *sql.DB
}

// NewPostgresCardHistoryRepo はPostgresCardHistoryRepoを生成する。
func NewPostgresCardHistoryRepo(db *sql.DB) *PostgresCardHistoryRepo {
	return &PostgresCardHistoryRepo{db: db}
}

const selectHistoryColumns = `SELECT id, user_id, image_url, thumbnail_url, config, blessing_text, created_at FROM card_history`

// Create は履歴を1件作成する。
func (r *PostgresCardHistoryRepo) Create(ctx context.Context, entry *model.CardHistoryEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO card_history (id, user_id, image_url, thumbnail_url, config, blessing_text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, entry.ImageURL,
		entry.ThumbnailURL, jsonParam(entry.Config), entry.BlessingText,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card history: %w", err)
	}
	return nil
}

// FindByIDForUser は指定ユーザーが所有する履歴を取得する。
// 他ユーザーの履歴と存在しない履歴は区別せずnilを返す。
func (r *PostgresCardHistoryRepo) FindByIDForUser(ctx context.Context, id, userID string) (*model.CardHistoryEntry, error) {
	row := r.db.QueryRowContext(ctx,
		selectHistoryColumns+` WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	entry, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) || isInvalidTextRepresentation(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card history: %w", err)
	}
	return entry, nil
}

// ListByUser はユーザーの履歴をcreated_at降順でoffset/limit分取得する。
func (r *PostgresCardHistoryRepo) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.CardHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		selectHistoryColumns+` WHERE user_id = $1 ORDER BY created_at DESC, id DESC OFFSET $2 LIMIT $3`,
		userID, offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list card history: %w", err)
	}
	defer rows.Close()

	entries := make([]*model.CardHistoryEntry, 0, limit)
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card history: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate card history: %w", err)
	}
	return entries, nil
}

// CountByUser はユーザーの履歴件数を返す。
func (r *PostgresCardHistoryRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM card_history WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count card history: %w", err)
	}
	return count, nil
}

// DeleteForUser は指定ユーザーが所有する履歴を削除する。削除した場合はtrueを返す。
func (r *PostgresCardHistoryRepo) DeleteForUser(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM card_history WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		if isInvalidTextRepresentation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete card history: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(s rowScanner) (*model.CardHistoryEntry, error) {
	entry := &model.CardHistoryEntry{}
	var thumb, blessing sql.NullString
	var config []byte
	if err := s.Scan(&entry.ID, &entry.UserID, &entry.ImageURL, &thumb, &config, &blessing, &entry.CreatedAt); err != nil {
		return nil, err
	}
	if thumb.Valid {
		entry.ThumbnailURL = &thumb.String
	}
	if blessing.Valid {
		entry.BlessingText = &blessing.String
	}
	if len(config) > 0 {
		entry.Config = config
	}
	return entry, nil
}

// jsonParam はJSON列へのパラメータを返す。
// lib/pqは[]byteをbyteaとして送るため、文字列に変換して渡す。
// JSON型はテキストをそのまま保持するため、キー順や空白も送信時のまま返る。
func jsonParam(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// isInvalidTextRepresentation はUUID列に不正な文字列を渡したことによるエラーかどうかを判定する。
func isInvalidTextRepresentation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgInvalidTextRepresentation
}

// compile-time interface check
var _ CardHistoryRepository = (*PostgresCardHistoryRepo)(nil)
