package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/greetcard/internal/card"
	"github.com/hitoshi/greetcard/internal/model"
	"github.com/hitoshi/greetcard/internal/security"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

func newTestRouter(cardSvc *mockCardService, checker HealthChecker) http.Handler {
	return NewRouter(&RouterDeps{
		Authenticator:      mockAuthenticator{},
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		HealthChecker:  checker,
		AuthService:    &mockAuthService{},
		AuthConfig:     AuthHandlerConfig{FrontendURL: "http://localhost:5173"},
		TextGenerator:  &mockTextGenerator{},
		ImageGenerator: &mockImageGenerator{},
		ImageFetcher:   &mockImageFetcher{},
		CardService:    cardSvc,
	})
}

// TestRouter_ProtectedRoutesRequireToken はカードと履歴のルートがトークンなしで401になることを検証する。
func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(&mockCardService{}, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/card/save"},
		{http.MethodGet, "/api/card/download/h1"},
		{http.MethodGet, "/api/history"},
		{http.MethodGet, "/api/history/h1"},
		{http.MethodDelete, "/api/history/h1"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			for _, authz := range []string{"", "Bearer bogus", "Basic dXNlcjpwYXNz"} {
				req := httptest.NewRequest(rt.method, rt.path, nil)
				if authz != "" {
					req.Header.Set("Authorization", authz)
				}
				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)

				assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestRouter_HistoryWithToken(t *testing.T) {
	var gotUser string
	svc := &mockCardService{
		listFn: func(ctx context.Context, userID string, offset, limit int) (*model.CardHistoryPage, error) {
			gotUser = userID
			return &model.CardHistoryPage{Items: []*model.CardHistoryEntry{}}, nil
		},
		getFn: func(ctx context.Context, userID, id string) (*model.CardHistoryEntry, error) {
			if userID != "u1" || id != "h1" {
				return nil, model.NewHistoryNotFoundError(id)
			}
			return &model.CardHistoryEntry{ID: id, ImageURL: "https://b/1.png"}, nil
		},
	}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer token-u1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	if gotUser != "u1" {
		t.Errorf("userID = %q, want u1", gotUser)
	}

	// 他ユーザーの履歴は存在しないものとして扱う
	req = httptest.NewRequest(http.MethodGet, "/api/history/h1", nil)
	req.Header.Set("Authorization", "Bearer token-u2")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeHistoryNotFound)

	req = httptest.NewRequest(http.MethodGet, "/api/history/h1", nil)
	req.Header.Set("Authorization", "Bearer token-u1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", w.Code)
	}
}

func TestRouter_CardSaveWithToken(t *testing.T) {
	svc := &mockCardService{saveFn: func(ctx context.Context, userID string, in card.SaveInput) (*model.CardHistoryEntry, error) {
		return &model.CardHistoryEntry{ID: "h9", UserID: userID, ImageURL: "https://b/9.png"}, nil
	}}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/card/save", jsonBody(t, map[string]any{"image_data": "AAAA"}))
	req.Header.Set("Authorization", "Bearer token-u1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
}

// TestRouter_PublicRoutes は生成系と画像プロキシがトークンなしで使えることを検証する。
func TestRouter_PublicRoutes(t *testing.T) {
	router := NewRouter(&RouterDeps{
		Authenticator: mockAuthenticator{},
		AuthService:   &mockAuthService{},
		TextGenerator: &mockTextGenerator{generateFn: func(ctx context.Context, prompt string) (string, error) {
			return "福", nil
		}},
		ImageGenerator: &mockImageGenerator{},
		ImageFetcher: &mockImageFetcher{fetchFn: func(ctx context.Context, rawURL string) (*security.RemoteImage, error) {
			return &security.RemoteImage{Data: []byte("png"), ContentType: "image/png"}, nil
		}},
		CardService: &mockCardService{},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ai/generate-text", nil))
	if w.Code != http.StatusOK {
		t.Errorf("generate-text status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ai/image-proxy?url=https://img.example.com/a.png", nil))
	if w.Code != http.StatusOK {
		t.Errorf("image-proxy status = %d, want 200", w.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"チェッカーなし", nil, http.StatusOK, "ok"},
		{"DB正常", &mockHealthChecker{}, http.StatusOK, "ok"},
		{"DB異常", &mockHealthChecker{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockCardService{}, tt.checker)
			for _, path := range []string{"/health", "/api/health"} {
				w := httptest.NewRecorder()
				router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

				if w.Code != tt.wantStatus {
					t.Errorf("%s status = %d, want %d", path, w.Code, tt.wantStatus)
				}
				var body map[string]string
				decodeJSON(t, w, &body)
				if body["status"] != tt.wantBody {
					t.Errorf("%s status field = %q, want %q", path, body["status"], tt.wantBody)
				}
			}
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(&mockCardService{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK || w.Body.String() != "# metrics" {
		t.Errorf("metrics = %d %q", w.Code, w.Body.String())
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(&mockCardService{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/history", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if w.Code == http.StatusUnauthorized {
		t.Error("preflight should not require a token")
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(&mockCardService{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}
