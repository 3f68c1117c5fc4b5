package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// PostgresIdentityRepoはIdentityRepositoryインターフェースを満たすことを検証
func TestPostgresIdentityRepo_ImplementsInterface(t *testing.T) {
	var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
}

// PostgresEventRepoはEventRepositoryインターフェースを満たすことを検証
func TestPostgresEventRepo_ImplementsInterface(t *testing.T) {
	var _ EventRepository = (*PostgresEventRepo)(nil)
}

// PostgresContactMessageRepoはContactMessageRepositoryインターフェースを満たすことを検証
func TestPostgresContactMessageRepo_ImplementsInterface(t *testing.T) {
	var _ ContactMessageRepository = (*PostgresContactMessageRepo)(nil)
}

// NewPostgresUserRepoが正しく初期化されることを検証
func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresEventRepoが正しく初期化されることを検証
func TestNewPostgresEventRepo_Initializes(t *testing.T) {
	repo := NewPostgresEventRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// 一意制約違反のエラーコード判定を検証
func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "一意制約違反のpqエラー",
			err:  &pq.Error{Code: "23505"},
			want: true,
		},
		{
			name: "他のpqエラー",
			err:  &pq.Error{Code: "23503"},
			want: false,
		},
		{
			name: "pq以外のエラー",
			err:  errors.New("some error"),
			want: false,
		},
		{
			name: "ラップされた一意制約違反",
			err:  fmt.Errorf("insert failed: %w", &pq.Error{Code: "23505"}),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
