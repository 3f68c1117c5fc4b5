// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/eventmaster/internal/model"
	"github.com/hitoshi/eventmaster/internal/repository"
)

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// Withdraw はユーザーの退会処理を実行する。
// usersの削除によりidentitiesとeventsはCASCADE削除される。
// セッションはステートレストークンのためサーバー側の削除対象はなく、
// クライアント側でCookieを破棄する（発行済みトークンは有効期限まで残る）。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("withdrawal started",
		slog.String("user_id", userID),
	)

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("withdrawal completed",
		slog.String("user_id", userID),
	)

	return nil
}
