// Package auth はOAuth2によるSSOとステートレスなセッショントークンを提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/greetcard/internal/model"
	"github.com/hitoshi/greetcard/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderSubject string
	Name            string
	Email           string
	AvatarURL       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) (string, error)
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// CallbackResult はOAuthコールバック成功時の結果。
type CallbackResult struct {
	User   *model.User
	Token  string
	Claims *model.SessionClaims
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider
	userRepo repository.UserRepository
	tokens   *TokenIssuer
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, userRepo repository.UserRepository, tokens *TokenIssuer) *Service {
	return &Service{
		oauth:    oauth,
		userRepo: userRepo,
		tokens:   tokens,
		now:      time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) (string, error) {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
// 未登録のsubjectの場合はユーザーを作成する。登録済みの場合はプロフィールを更新しない。
// いずれかの段階で失敗した場合はAuthenticationErrorを返す（設定不備はConfigurationError）。
func (s *Service) HandleCallback(ctx context.Context, code string) (*CallbackResult, error) {
	if code == "" {
		return nil, model.NewAuthenticationError("認可コードがありません", nil)
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, model.NewAuthenticationError("IdPとの通信に失敗しました", err)
	}

	// 2. subjectで既存ユーザーを検索
	user, err := s.userRepo.FindByProviderSubject(ctx, info.ProviderSubject)
	if err != nil {
		return nil, model.NewAuthenticationError("ユーザーの検索に失敗しました", err)
	}

	if user != nil {
		slog.Info("existing user logged in", slog.String("user_id", user.ID))
	} else {
		// 3. 新規ユーザーを作成（同時ログインでも1行に収束する）
		user, err = s.userRepo.CreateIfAbsent(ctx, &model.User{
			ID:              uuid.New().String(),
			ProviderSubject: info.ProviderSubject,
			Name:            info.Name,
			Email:           info.Email,
			AvatarURL:       info.AvatarURL,
			CreatedAt:       s.now(),
		})
		if err != nil {
			return nil, model.NewAuthenticationError("ユーザーの作成に失敗しました", err)
		}
		slog.Info("new user created", slog.String("user_id", user.ID))
	}

	// 4. セッショントークンを発行
	token, claims, err := s.tokens.Issue(user)
	if err != nil {
		return nil, model.NewAuthenticationError("セッションの発行に失敗しました", err)
	}

	return &CallbackResult{User: user, Token: token, Claims: claims}, nil
}

// Authenticate はセッショントークンを検証し、クレームを返す。
func (s *Service) Authenticate(token string) (*model.SessionClaims, error) {
	if token == "" {
		return nil, model.NewAuthenticationError("トークンがありません", nil)
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, model.NewAuthenticationError("トークンが無効または期限切れです", err)
	}
	return claims, nil
}

// CurrentUser はセッショントークンに対応するユーザーを返す。
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.Authenticate(token)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewAuthenticationError("ユーザーが存在しません", nil)
	}
	return user, nil
}
