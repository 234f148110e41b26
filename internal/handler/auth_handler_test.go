package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/greetcard/internal/auth"
	"github.com/hitoshi/greetcard/internal/model"
)

func newTestAuthHandler(svc AuthServiceInterface) *AuthHandler {
	return NewAuthHandler(svc, AuthHandlerConfig{FrontendURL: "http://localhost:5173"})
}

func TestAuthHandler_Login_SetsStateAndRedirects(t *testing.T) {
	var gotState string
	svc := &mockAuthService{getLoginURLFn: func(state string) (string, error) {
		gotState = state
		return "https://sso.example.com/authorize?state=" + state, nil
	}}

	w := httptest.NewRecorder()
	newTestAuthHandler(svc).Login(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if len(gotState) != 32 {
		t.Errorf("state length = %d, want 32 hex chars", len(gotState))
	}
	if loc := w.Header().Get("Location"); !strings.Contains(loc, "state="+gotState) {
		t.Errorf("Location = %q, should carry state", loc)
	}

	var stateCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == oauthStateCookie {
			stateCookie = c
		}
	}
	if stateCookie == nil || stateCookie.Value != gotState || !stateCookie.HttpOnly {
		t.Errorf("state cookie = %+v", stateCookie)
	}
}

// TestAuthHandler_Login_NotConfigured はSSO未設定時に500 CONFIGURATION_ERRORになることを検証する。
func TestAuthHandler_Login_NotConfigured(t *testing.T) {
	svc := &mockAuthService{getLoginURLFn: func(state string) (string, error) {
		return "", model.NewConfigurationError("OAUTH2_CLIENT_ID")
	}}

	w := httptest.NewRecorder()
	newTestAuthHandler(svc).Login(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))

	assertErrorCode(t, w, http.StatusInternalServerError, model.ErrCodeConfiguration)
}

func TestAuthHandler_Callback_RedirectsWithToken(t *testing.T) {
	var gotCode string
	svc := &mockAuthService{handleCallbackFn: func(ctx context.Context, code string) (*auth.CallbackResult, error) {
		gotCode = code
		return &auth.CallbackResult{User: &model.User{ID: "u1"}, Token: "jwt.token+/="}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=abc&state=s1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s1"})
	w := httptest.NewRecorder()
	newTestAuthHandler(svc).Callback(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if gotCode != "abc" {
		t.Errorf("code = %q, want abc", gotCode)
	}

	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location: %v", err)
	}
	if loc.Host != "localhost:5173" {
		t.Errorf("redirect host = %q, want localhost:5173", loc.Host)
	}
	if got := loc.Query().Get("token"); got != "jwt.token+/=" {
		t.Errorf("token = %q, want %q", got, "jwt.token+/=")
	}
}

func TestAuthHandler_Callback_Errors(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		cookie      string
		callbackErr error
		wantStatus  int
		wantCode    string
	}{
		{"stateクッキーなし", "code=abc&state=s1", "", nil, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"state不一致", "code=abc&state=s1", "other", nil, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"コードなし", "state=s1", "s1", nil, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"IdPがエラーを返した", "error=access_denied&state=s1", "s1", nil, http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"トークン交換失敗", "code=abc&state=s1", "s1", model.NewAuthenticationError("token exchange failed", nil), http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"SSO未設定", "code=abc&state=s1", "s1", model.NewConfigurationError("OAUTH2_TOKEN_URL"), http.StatusInternalServerError, model.ErrCodeConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{handleCallbackFn: func(ctx context.Context, code string) (*auth.CallbackResult, error) {
				called = true
				return nil, tt.callbackErr
			}}

			req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			newTestAuthHandler(svc).Callback(w, req)

			assertErrorCode(t, w, tt.wantStatus, tt.wantCode)
			if tt.callbackErr == nil && called {
				t.Error("HandleCallback should not be called")
			}
		})
	}
}

func TestAuthHandler_Logout_Redirects(t *testing.T) {
	tests := []struct {
		method     string
		wantStatus int
	}{
		{http.MethodGet, http.StatusTemporaryRedirect},
		{http.MethodPost, http.StatusSeeOther},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			w := httptest.NewRecorder()
			newTestAuthHandler(&mockAuthService{}).Logout(w, httptest.NewRequest(tt.method, "/api/auth/logout", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if loc := w.Header().Get("Location"); loc != "http://localhost:5173" {
				t.Errorf("Location = %q", loc)
			}
		})
	}
}

func TestAuthHandler_Me(t *testing.T) {
	svc := &mockAuthService{currentUserFn: func(ctx context.Context, token string) (*model.User, error) {
		if token != "good" {
			return nil, model.NewAuthenticationError("トークンが無効または期限切れです", nil)
		}
		return &model.User{ID: "u1", Name: "小明", Email: "xm@example.com"}, nil
	}}
	h := newTestAuthHandler(svc)

	t.Run("有効なトークン", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		h.Me(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var body map[string]any
		decodeJSON(t, w, &body)
		if body["id"] != "u1" || body["username"] != "小明" || body["email"] != "xm@example.com" {
			t.Errorf("body = %v", body)
		}
		// アバター未設定はnull
		if v, ok := body["avatar"]; !ok || v != nil {
			t.Errorf("avatar = %v, want null", v)
		}
	})

	t.Run("トークンなし", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
		assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
	})
}
