// Package contact は問い合わせフォームのドメインロジックを提供する。
package contact

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/eventmaster/internal/model"
	"github.com/hitoshi/eventmaster/internal/repository"
)

// minMessageLen は問い合わせ本文の最小文字数。
const minMessageLen = 10

// Service は問い合わせメッセージの受付サービス。
type Service struct {
	contactRepo repository.ContactMessageRepository
}

// NewService はServiceを生成する。
func NewService(contactRepo repository.ContactMessageRepository) *Service {
	return &Service{contactRepo: contactRepo}
}

// Submit は問い合わせメッセージを検証して保存する。
// 認証不要の公開エンドポイントから呼ばれるため、レート制限はミドルウェア側で行う。
func (s *Service) Submit(ctx context.Context, name, email, message string) (*model.ContactMessage, error) {
	if err := validateContactInput(name, email, message); err != nil {
		return nil, err
	}

	msg := &model.ContactMessage{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		Message:   strings.TrimSpace(message),
		CreatedAt: time.Now(),
	}

	if err := s.contactRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save contact message: %w", err)
	}

	slog.Info("contact message received",
		slog.String("message_id", msg.ID),
	)

	return msg, nil
}

// validateContactInput は問い合わせの入力値を検証する。
func validateContactInput(name, email, message string) error {
	nameLen := utf8.RuneCountInString(strings.TrimSpace(name))
	if nameLen < 3 {
		return model.NewValidationError("お名前は3文字以上で入力してください")
	}
	if nameLen > 120 {
		return model.NewValidationError("お名前は120文字以内で入力してください")
	}

	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}

	if utf8.RuneCountInString(strings.TrimSpace(message)) < minMessageLen {
		return model.NewValidationError("お問い合わせ内容は10文字以上で入力してください")
	}

	return nil
}
