package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/greetcard/internal/auth"
	"github.com/hitoshi/greetcard/internal/card"
	"github.com/hitoshi/greetcard/internal/generation"
	"github.com/hitoshi/greetcard/internal/middleware"
	"github.com/hitoshi/greetcard/internal/model"
	"github.com/hitoshi/greetcard/internal/security"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) (string, error)
	handleCallbackFn func(ctx context.Context, code string) (*auth.CallbackResult, error)
	currentUserFn    func(ctx context.Context, token string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://sso.example.com/authorize?state=" + state, nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*auth.CallbackResult, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, model.NewAuthenticationError("not implemented", nil)
}

func (m *mockAuthService) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, token)
	}
	return nil, model.NewAuthenticationError("トークンがありません", nil)
}

type mockTextGenerator struct {
	generateFn func(ctx context.Context, prompt string) (string, error)
}

func (m *mockTextGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return m.generateFn(ctx, prompt)
}

type mockImageGenerator struct {
	generateFn func(ctx context.Context, req generation.ImageRequest) (string, error)
}

func (m *mockImageGenerator) Generate(ctx context.Context, req generation.ImageRequest) (string, error) {
	return m.generateFn(ctx, req)
}

type mockImageFetcher struct {
	fetchFn func(ctx context.Context, rawURL string) (*security.RemoteImage, error)
}

func (m *mockImageFetcher) Fetch(ctx context.Context, rawURL string) (*security.RemoteImage, error) {
	return m.fetchFn(ctx, rawURL)
}

type mockCardService struct {
	saveFn     func(ctx context.Context, userID string, in card.SaveInput) (*model.CardHistoryEntry, error)
	listFn     func(ctx context.Context, userID string, offset, limit int) (*model.CardHistoryPage, error)
	getFn      func(ctx context.Context, userID, id string) (*model.CardHistoryEntry, error)
	deleteFn   func(ctx context.Context, userID, id string) error
	downloadFn func(ctx context.Context, userID, id string) (*security.RemoteImage, error)
}

func (m *mockCardService) Save(ctx context.Context, userID string, in card.SaveInput) (*model.CardHistoryEntry, error) {
	return m.saveFn(ctx, userID, in)
}

func (m *mockCardService) List(ctx context.Context, userID string, offset, limit int) (*model.CardHistoryPage, error) {
	return m.listFn(ctx, userID, offset, limit)
}

func (m *mockCardService) Get(ctx context.Context, userID, id string) (*model.CardHistoryEntry, error) {
	return m.getFn(ctx, userID, id)
}

func (m *mockCardService) Delete(ctx context.Context, userID, id string) error {
	return m.deleteFn(ctx, userID, id)
}

func (m *mockCardService) Download(ctx context.Context, userID, id string) (*security.RemoteImage, error) {
	return m.downloadFn(ctx, userID, id)
}

// mockAuthenticator は"token-<userID>"形式のトークンだけを受け付ける。
type mockAuthenticator struct{}

func (mockAuthenticator) Authenticate(token string) (*model.SessionClaims, error) {
	if len(token) <= len("token-") || token[:len("token-")] != "token-" {
		return nil, model.NewAuthenticationError("トークンが無効または期限切れです", nil)
	}
	return &model.SessionClaims{UserID: token[len("token-"):], ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// --- ヘルパー ---

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, wantStatus, w.Body.String())
	}
	var body middleware.ErrorResponseBody
	decodeJSON(t, w, &body)
	if body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
}
