package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/greetcard/internal/model"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var userColumns = []string{"id", "provider_subject", "name", "email", "avatar_url", "created_at"}

func TestPostgresUserRepo_FindByProviderSubject_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	createdAt := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE provider_subject = $1`)).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("user-1", "sub-1", "Alice", "alice@example.com", nil, createdAt))

	user, err := repo.FindByProviderSubject(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.ID != "user-1" || user.Name != "Alice" || user.Email != "alice@example.com" {
		t.Errorf("unexpected user: %+v", user)
	}
	// NULLのavatar_urlは空文字列になる
	if user.AvatarURL != "" {
		t.Errorf("AvatarURL = %q, want empty", user.AvatarURL)
	}
	if !user.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt = %v, want %v", user.CreatedAt, createdAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresUserRepo_FindByProviderSubject_NotFound_ReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE provider_subject = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userColumns))

	user, err := repo.FindByProviderSubject(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}

func TestPostgresUserRepo_FindByID_DBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs("user-1").
		WillReturnError(errors.New("connection reset"))

	if _, err := repo.FindByID(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// TestPostgresUserRepo_CreateIfAbsent_ReturnsStoredRow は競合時に先に保存された行が返ることを検証する。
func TestPostgresUserRepo_CreateIfAbsent_ReturnsStoredRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (provider_subject) DO NOTHING`)).
		WithArgs("new-id", "sub-1", "Bob", sqlmock.AnyArg(), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE provider_subject = $1`)).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow("first-id", "sub-1", "Alice", "alice@example.com", "https://example.com/a.png", now))

	stored, err := repo.CreateIfAbsent(context.Background(), &model.User{
		ID:              "new-id",
		ProviderSubject: "sub-1",
		Name:            "Bob",
		CreatedAt:       now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ID != "first-id" {
		t.Errorf("ID = %q, want %q (first write wins)", stored.ID, "first-id")
	}
	if stored.Name != "Alice" {
		t.Errorf("Name = %q, want %q", stored.Name, "Alice")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresUserRepo_CreateIfAbsent_InsertError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(errors.New("insert failed"))

	if _, err := repo.CreateIfAbsent(context.Background(), &model.User{ID: "id", ProviderSubject: "sub"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}
