// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashが空のユーザーは外部IdP経由でのみログインできる。
type User struct {
	ID           string
	Email        string
	Name         string
	AvatarURL    string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword はパスワード認証が設定されているかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Identity は外部IdPとの紐付け情報を表す。
// 1ユーザーが複数のIdP（Google, GitHub等）を紐付けられる構造。
// (Provider, ProviderUserID) の組は常に1ユーザーにのみ対応する。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}
