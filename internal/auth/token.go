package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/greetcard/internal/model"
)

// DefaultSessionTTL はセッショントークンの既定の有効期間（7日）。
const DefaultSessionTTL = 7 * 24 * time.Hour

// tokenClaims はセッショントークンに埋め込むJWTクレーム。
type tokenClaims struct {
	UserID  string `json:"user_id"`
	OAuthID string `json:"oauth_id"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256署名のステートレスなセッショントークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。ttlが0以下の場合はDefaultSessionTTLを使う。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return NewTokenIssuerWithClock(secret, ttl, time.Now)
}

// NewTokenIssuerWithClock は時刻関数を指定してTokenIssuerを生成する。
func NewTokenIssuerWithClock(secret string, ttl time.Duration, now func() time.Time) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: now}
}

// Issue はユーザーのセッショントークンを発行する。有効期限は発行時刻+TTLの絶対時刻。
func (t *TokenIssuer) Issue(user *model.User) (string, *model.SessionClaims, error) {
	// NumericDateは秒精度のため、発行時刻も秒に丸める
	issuedAt := t.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(t.ttl)

	claims := tokenClaims{
		UserID:  user.ID,
		OAuthID: user.ProviderSubject,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, &model.SessionClaims{
		UserID:          user.ID,
		ProviderSubject: user.ProviderSubject,
		IssuedAt:        issuedAt,
		ExpiresAt:       expiresAt,
	}, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// HS256以外の署名方式、expの欠落、期限切れはすべてエラーになる。
func (t *TokenIssuer) Verify(token string) (*model.SessionClaims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if claims.UserID == "" {
		return nil, errors.New("invalid session token: missing user_id")
	}

	sc := &model.SessionClaims{
		UserID:          claims.UserID,
		ProviderSubject: claims.OAuthID,
		ExpiresAt:       claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		sc.IssuedAt = claims.IssuedAt.Time
	}
	return sc, nil
}
