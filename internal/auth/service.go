// Package auth は認証のコア機能を提供する。
// パスワード認証、ステートレスなセッショントークンの発行・検証、
// 外部IdP（OAuth）認証と既存アカウントの照合を担う。
package auth

import (
	"context"
	"errors"
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

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
	Provider       string // "google", "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// LoginMetrics は認証結果のメトリクス記録インターフェース。
type LoginMetrics interface {
	RecordLoginSuccess(method string)
	RecordLoginFailure(method string)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth     OAuthProvider
	userRepo  repository.UserRepository
	identRepo repository.IdentityRepository
	hasher    *PasswordHasher
	tokens    *TokenIssuer
	metrics   LoginMetrics
}

// NewService はServiceを生成する。
// metricsはnilでもよい（テスト等でメトリクスを記録しない場合）。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	hasher *PasswordHasher,
	tokens *TokenIssuer,
	metrics LoginMetrics,
) *Service {
	return &Service{
		oauth:     oauth,
		userRepo:  userRepo,
		identRepo: identRepo,
		hasher:    hasher,
		tokens:    tokens,
		metrics:   metrics,
	}
}

// Register はパスワード認証のユーザーを新規登録する。
// メールアドレスは大文字小文字を区別せず一意。重複時はEMAIL_TAKENエラーを返す。
func (s *Service) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	if err := validateRegistration(name, email, password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, model.NewValidationError("パスワードの形式が不正です")
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        strings.TrimSpace(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
	)

	return user, nil
}

// Login はメールアドレスとパスワードで認証し、セッショントークンを発行する。
// メールアドレス不明とパスワード不一致は外部から区別できない。
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}

	// ユーザー不在・パスワード未設定・パスワード不一致はすべて同じ失敗として扱う
	if user == nil || !user.HasPassword() || !s.hasher.Verify(password, user.PasswordHash) {
		s.recordLoginFailure("password")
		slog.Warn("login failed", slog.String("method", "password"))
		return "", model.NewAuthenticationFailedError()
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.recordLoginSuccess("password")
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", "password"),
	)

	return token, nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
// 照合順序:
//  1. (provider, provider_user_id) の紐付けが存在すればそのユーザーでログイン
//  2. 同じメールアドレスのユーザーが存在すれば紐付けを追加してログイン（アカウントリンク）
//  3. どちらもなければユーザーと紐付けを同時に新規作成
//
// 手順2はIdP側のメールアドレス検証を信頼する設計判断であり、
// 紐付け追加時には必ずログを残す。
func (s *Service) HandleCallback(ctx context.Context, code string) (string, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.recordLoginFailure("oauth")
		slog.Error("oauth code exchange failed",
			slog.String("provider", "google"),
			slog.String("error", err.Error()),
		)
		// IdPへの到達不能・交換失敗は外部サービス起因として扱う
		return "", model.NewUpstreamUnavailableError()
	}

	userID, err := s.resolveExternalIdentity(ctx, userInfo)
	if err != nil {
		s.recordLoginFailure("oauth")
		return "", err
	}

	token, err := s.tokens.Issue(userID)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.recordLoginSuccess("oauth")
	return token, nil
}

// resolveExternalIdentity は外部IdPのユーザー情報をローカルユーザーに解決する。
func (s *Service) resolveExternalIdentity(ctx context.Context, userInfo *OAuthUserInfo) (string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		slog.Info("existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", userInfo.Provider),
			slog.String("method", "oauth"),
		)
		return identity.UserID, nil
	}

	existing, err := s.userRepo.FindByEmail(ctx, userInfo.Email)
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}

	now := time.Now()

	if existing != nil {
		// メールアドレス一致による暗黙のアカウントリンク。
		// IdPのメールアドレス検証を信頼する設計判断のため、必ずログに残す。
		newIdentity := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         existing.ID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}
		if err := s.identRepo.Create(ctx, newIdentity); err != nil {
			return "", fmt.Errorf("failed to link identity: %w", err)
		}

		slog.Warn("linked external identity to existing account by email match",
			slog.String("user_id", existing.ID),
			slog.String("provider", userInfo.Provider),
		)
		return existing.ID, nil
	}

	// 新規ユーザー: usersレコードとidentitiesレコードを同時に作成。
	// IdP経由のユーザーにはパスワードハッシュを保存しない。
	newUser := &model.User{
		ID:        uuid.New().String(),
		Email:     userInfo.Email,
		Name:      userInfo.Name,
		AvatarURL: userInfo.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         newUser.ID,
		Provider:       userInfo.Provider,
		ProviderUserID: userInfo.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("provider", userInfo.Provider),
	)

	return newUser.ID, nil
}

// GetCurrentUser はユーザーIDから現在のユーザーを取得する。
// トークン検証はミドルウェアで完了している前提。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) recordLoginSuccess(method string) {
	if s.metrics != nil {
		s.metrics.RecordLoginSuccess(method)
	}
}

func (s *Service) recordLoginFailure(method string) {
	if s.metrics != nil {
		s.metrics.RecordLoginFailure(method)
	}
}

// validateRegistration は登録入力を検証する。
func validateRegistration(name, email, password string) error {
	nameLen := utf8.RuneCountInString(strings.TrimSpace(name))
	if nameLen < 3 {
		return model.NewValidationError("名前は3文字以上で入力してください")
	}
	if nameLen > 120 {
		return model.NewValidationError("名前は120文字以内で入力してください")
	}

	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}

	if utf8.RuneCountInString(password) < 6 {
		return model.NewValidationError("パスワードは6文字以上で入力してください")
	}
	if len(password) > bcryptMaxPasswordLen {
		return model.NewValidationError("パスワードが長すぎます")
	}

	return nil
}
