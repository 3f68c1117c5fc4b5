package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptMaxPasswordLen はbcryptが処理できるパスワードの最大バイト数。
// これを超える入力は切り詰めではなくエラーとして拒否する。
const bcryptMaxPasswordLen = 72

// PasswordHasher はパスワードのハッシュ化と検証を提供する。
// bcryptはソルトとコストファクターをハッシュ出力に埋め込むため、
// 検証時に外部状態を必要としない。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はPasswordHasherを生成する。
// costが範囲外の場合はbcrypt.DefaultCostを使用する。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash は平文パスワードをbcryptでハッシュ化する。
// 空のパスワードと72バイトを超えるパスワードはエラーを返す。
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	if len(plaintext) > bcryptMaxPasswordLen {
		return "", fmt.Errorf("password exceeds %d bytes", bcryptMaxPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hash), nil
}

// Verify は平文パスワードとハッシュを比較する。
// 比較はbcrypt内部で定数時間で行われる。
// ハッシュが不正な形式の場合もエラーではなくfalseを返す。
func (h *PasswordHasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
