package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// テストはコスト最小値を使用してbcryptの計算時間を抑える。
func testHasher() *PasswordHasher {
	return NewPasswordHasher(bcrypt.MinCost)
}

// TestHash_VerifyRoundTrip は同一パスワードの検証が成功することを検証する。
func TestHash_VerifyRoundTrip(t *testing.T) {
	hasher := testHasher()

	tests := []struct {
		name     string
		password string
	}{
		{"英数字", "secret1"},
		{"記号を含む", "p@ssw0rd!#$%"},
		{"日本語", "ぱすわーど123"},
		{"長いパスワード", strings.Repeat("a", 72)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.Hash(tt.password)
			if err != nil {
				t.Fatalf("Hash() error = %v", err)
			}
			if hash == tt.password {
				t.Error("ハッシュが平文と同一")
			}
			if !hasher.Verify(tt.password, hash) {
				t.Error("正しいパスワードの検証に失敗")
			}
		})
	}
}

// TestVerify_WrongPassword は異なるパスワードの検証が失敗することを検証する。
func TestVerify_WrongPassword(t *testing.T) {
	hasher := testHasher()

	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if hasher.Verify("wrong-password", hash) {
		t.Error("誤ったパスワードの検証が成功してしまった")
	}
}

// TestVerify_MalformedHash は不正な形式のハッシュでもfalseを返す（パニックしない）ことを検証する。
func TestVerify_MalformedHash(t *testing.T) {
	hasher := testHasher()

	tests := []struct {
		name string
		hash string
	}{
		{"空文字列", ""},
		{"bcrypt形式でない文字列", "not-a-bcrypt-hash"},
		{"切り詰められたハッシュ", "$2a$10$abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if hasher.Verify("password", tt.hash) {
				t.Error("不正なハッシュの検証が成功してしまった")
			}
		})
	}
}

// TestHash_EmptyPassword は空パスワードがエラーになることを検証する。
func TestHash_EmptyPassword(t *testing.T) {
	hasher := testHasher()

	if _, err := hasher.Hash(""); err == nil {
		t.Error("expected error for empty password")
	}
}

// TestHash_TooLongPassword は72バイトを超えるパスワードがエラーになることを検証する。
func TestHash_TooLongPassword(t *testing.T) {
	hasher := testHasher()

	if _, err := hasher.Hash(strings.Repeat("a", 73)); err == nil {
		t.Error("expected error for password over 72 bytes")
	}
}

// TestHash_SamePasswordProducesDifferentHashes はソルトにより
// 同一パスワードでも異なるハッシュが生成されることを検証する。
func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	hasher := testHasher()

	hash1, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	hash2, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if hash1 == hash2 {
		t.Error("同一パスワードから同一ハッシュが生成された（ソルトが機能していない）")
	}
}

// TestNewPasswordHasher_InvalidCostFallsBackToDefault は範囲外のコストが
// デフォルトに補正されることを検証する。
func TestNewPasswordHasher_InvalidCostFallsBackToDefault(t *testing.T) {
	hasher := NewPasswordHasher(100)
	if hasher.cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", hasher.cost, bcrypt.DefaultCost)
	}

	hasher = NewPasswordHasher(0)
	if hasher.cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", hasher.cost, bcrypt.DefaultCost)
	}
}
