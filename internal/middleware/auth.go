// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/greetcard/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// claimsContextKey はリクエストコンテキストに検証済みクレームを格納するためのキー。
	claimsContextKey = contextKey("session_claims")
	// requestStateContextKey はロギングミドルウェアと共有するリクエスト状態のキー。
	requestStateContextKey = contextKey("request_state")
)

// TokenAuthenticator はセッショントークンの検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type TokenAuthenticator interface {
	Authenticate(token string) (*model.SessionClaims, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 検証済みのクレームをリクエストコンテキストに注入する。
// トークンがない・不正・期限切れの場合は401を返す。
func NewBearerAuthMiddleware(authn TokenAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. トークンの取得と検証
			claims, err := authn.Authenticate(BearerToken(r))
			if err != nil {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) {
					apiErr = model.NewAuthenticationError("トークンが無効です", err)
				}
				WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
				return
			}

			// 2. ロギング用にユーザーIDを記録
			if st, ok := r.Context().Value(requestStateContextKey).(*requestState); ok {
				st.userID = claims.UserID
			}

			// 3. クレームをコンテキストに注入
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。ない場合は空文字を返す。
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// Bearer認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(claimsContextKey).(*model.SessionClaims)
	if !ok || claims.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return claims.UserID, nil
}

// ClaimsFromContext はリクエストコンテキストからセッションクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*model.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*model.SessionClaims)
	return claims, ok
}

// ContextWithClaims はコンテキストにセッションクレームを注入する。
func ContextWithClaims(ctx context.Context, claims *model.SessionClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ContextWithUserID はユーザーIDだけを持つクレームをコンテキストに注入する。
// ハンドラーのテストで使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithClaims(ctx, &model.SessionClaims{UserID: userID})
}
