package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ（原因の説明を含む）
	Category string // カテゴリ: auth, validation, generation, storage, system
	Action   string // ユーザー向け対処方法

	// Err は原因となった下位エラー。レスポンスには含めずログ出力にのみ使う。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeUpstream        = "UPSTREAM_ERROR"
	ErrCodeHistoryNotFound = "HISTORY_NOT_FOUND"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidImage    = "INVALID_IMAGE"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewConfigurationError は必須設定が未設定の場合のエラーを生成する。
// 起動時ではなく、その設定を必要とする処理の呼び出し時に返す。
func NewConfigurationError(setting string) *APIError {
	return &APIError{
		Code:     ErrCodeConfiguration,
		Message:  fmt.Sprintf("必要な設定がされていません: %s", setting),
		Category: "system",
		Action:   "管理者に設定の確認を依頼してください。",
	}
}

// NewUpstreamError は外部サービス（IdP、生成API、ストレージ）の失敗を表すエラーを生成する。
// detailには上流のエラー内容を含め、呼び出し元にそのまま伝える。
func NewUpstreamError(service, detail string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  fmt.Sprintf("%sの呼び出しに失敗しました: %s", service, detail),
		Category: "generation",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewHistoryNotFoundError は履歴が存在しない、または所有者でない場合のエラーを生成する。
// 存在の有無を漏らさないため、他ユーザーの履歴に対しても同じエラーを返す。
func NewHistoryNotFoundError(historyID string) *APIError {
	return &APIError{
		Code:     ErrCodeHistoryNotFound,
		Message:  fmt.Sprintf("指定された履歴が見つかりません: %s", historyID),
		Category: "storage",
		Action:   "履歴IDを確認してください。",
	}
}

// NewAuthenticationError は認証失敗（トークン不正・期限切れ・未指定、SSOの失敗）のエラーを生成する。
func NewAuthenticationError(reason string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  fmt.Sprintf("認証に失敗しました: %s", reason),
		Category: "auth",
		Action:   "ログインし直してください。",
		Err:      err,
	}
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidImageError はアップロードされた画像データをデコードできない場合のエラーを生成する。
func NewInvalidImageError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  "画像データをデコードできませんでした。",
		Category: "validation",
		Action:   "base64エンコードされたPNG/JPEG画像を送信してください。",
		Err:      err,
	}
}

// NewSaveFailedError はカード保存処理（アップロード・履歴書き込み）の失敗を表すエラーを生成する。
func NewSaveFailedError(detail string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  fmt.Sprintf("カードの保存に失敗しました: %s", detail),
		Category: "storage",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}
