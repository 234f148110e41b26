package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/greetcard/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const selectUserColumns = `SELECT id, provider_subject, name, email, avatar_url, created_at FROM users`

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, selectUserColumns+` WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if isInvalidTextRepresentation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByProviderSubject はIdPのsubject IDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByProviderSubject(ctx context.Context, subject string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, selectUserColumns+` WHERE provider_subject = $1`, subject)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by provider subject: %w", err)
	}
	return user, nil
}

// CreateIfAbsent はユーザーを作成し、保存済みのユーザーを返す。
// 同時に初回ログインが走った場合でもON CONFLICTで1行に収束し、
// 後から来た側は先に作成されたユーザーを受け取る。
func (r *PostgresUserRepo) CreateIfAbsent(ctx context.Context, user *model.User) (*model.User, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, provider_subject, name, email, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (provider_subject) DO NOTHING`,
		user.ID, user.ProviderSubject,
		nullString(user.Name), nullString(user.Email), nullString(user.AvatarURL),
		user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	stored, err := r.FindByProviderSubject(ctx, user.ProviderSubject)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("user not found after insert: %s", user.ProviderSubject)
	}
	return stored, nil
}

// scanUser は1行をUserに変換する。行が存在しない場合はnil, nilを返す。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var name, email, avatar sql.NullString
	err := row.Scan(&user.ID, &user.ProviderSubject, &name, &email, &avatar, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Name = name.String
	user.Email = email.String
	user.AvatarURL = avatar.String
	return user, nil
}

// nullString は空文字列をNULLとして保存するための変換を行う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
