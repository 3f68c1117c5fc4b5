// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, event, contact, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeEventNotFound        = "EVENT_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeUpstreamUnavailable  = "UPSTREAM_UNAVAILABLE"
)

// NewValidationError は入力検証エラーを生成する。
// reasonには検証に失敗した理由を指定する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewAuthenticationFailedError は認証失敗エラーを生成する。
// アカウント列挙を防ぐため、メールアドレス不明とパスワード不一致を区別しない。
func NewAuthenticationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationFailed,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
// リソースの存在漏洩を防ぐため、所有者不一致の場合も外部には同じエラーを返す。
func NewEventNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  "イベントが見つからないか、アクセス権がありません。",
		Category: "event",
		Action:   "イベントIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUpstreamUnavailableError は外部サービス接続エラーを生成する。
// データベースやIdPが一時的に到達不能な場合に使用する。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  "外部サービスに接続できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
