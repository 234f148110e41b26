// Package model はドメインモデルを定義する。
package model

import "time"

// User はSSOでログインしたサービス利用ユーザーを表す。
// 初回のOAuthコールバック成功時に作成され、本システムから削除されることはない。
type User struct {
	ID              string
	ProviderSubject string // IdPのsubject ID（一意・不変）
	Name            string
	Email           string
	AvatarURL       string
	CreatedAt       time.Time
}

// SessionClaims は署名付きセッショントークンに埋め込まれるクレームを表す。
// サーバー側には保持しないステートレスなトークンのため、失効はExpiresAtのみで判断する。
type SessionClaims struct {
	UserID          string
	ProviderSubject string
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// Expired は指定時刻時点でトークンが期限切れかどうかを返す。
func (c *SessionClaims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
