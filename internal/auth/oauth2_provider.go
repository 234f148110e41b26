package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/greetcard/internal/extract"
	"github.com/hitoshi/greetcard/internal/model"
)

// maxUserInfoSize はユーザー情報レスポンスの読み込み上限（1MB）。
const maxUserInfoSize = 1 << 20

// userInfoクレームの取り出しルール。IdPによってフィールド名が異なるため先に見つかったものを使う。
var (
	subjectPaths = []string{"sub", "id"}
	namePaths    = []string{"name", "username"}
	emailPaths   = []string{"email"}
	avatarPaths  = []string{"picture", "avatar"}
)

// OAuth2Config は汎用OAuth2 IdPの設定。
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string

	// HTTPClient はトークン交換とユーザー情報取得に使うクライアント。nilの場合は10秒タイムアウトのクライアントを使う。
	HTTPClient *http.Client
}

// OAuth2Provider は認可コードフローによるSSOを提供する。
type OAuth2Provider struct {
	conf        *oauth2.Config
	userInfoURL string
	client      *http.Client
}

// NewOAuth2Provider はOAuth2Providerを生成する。
func NewOAuth2Provider(cfg OAuth2Config) *OAuth2Provider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OAuth2Provider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
				// client_id/client_secretはフォームパラメータで送る
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		client:      client,
	}
}

// GetLoginURL はIdPの認可画面へのURLを生成する。
func (p *OAuth2Provider) GetLoginURL(state string) (string, error) {
	if p.conf.ClientID == "" {
		return "", model.NewConfigurationError("OAUTH2_CLIENT_ID")
	}
	if p.conf.Endpoint.AuthURL == "" {
		return "", model.NewConfigurationError("OAUTH2_AUTHORIZATION_URL")
	}
	return p.conf.AuthCodeURL(state), nil
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *OAuth2Provider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if p.conf.ClientID == "" {
		return nil, model.NewConfigurationError("OAUTH2_CLIENT_ID")
	}
	if p.conf.Endpoint.TokenURL == "" {
		return nil, model.NewConfigurationError("OAUTH2_TOKEN_URL")
	}
	if p.userInfoURL == "" {
		return nil, model.NewConfigurationError("OAUTH2_USERINFO_URL")
	}

	// 1. 認可コードをアクセストークンに交換
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	info, err := p.fetchUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	return info, nil
}

// fetchUserInfo はアクセストークンでユーザー情報エンドポイントを呼び出す。
func (p *OAuth2Provider) fetchUserInfo(ctx context.Context, accessToken string) (*OAuthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	subject := extract.Scalar(body, subjectPaths...)
	if subject == "" {
		return nil, fmt.Errorf("empty subject in user info response")
	}

	return &OAuthUserInfo{
		ProviderSubject: subject,
		Name:            extract.String(body, namePaths...),
		Email:           extract.String(body, emailPaths...),
		AvatarURL:       extract.String(body, avatarPaths...),
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*OAuth2Provider)(nil)
