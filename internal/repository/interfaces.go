// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/eventmaster/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。
	// 大文字小文字を区別しない。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが重複している場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、eventsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create はidentityを作成する。既存ユーザーへのIdP紐付け（アカウントリンク）で使用する。
	Create(ctx context.Context, identity *model.Identity) error
}

// EventRepository はイベントデータの永続化インターフェース。
type EventRepository interface {
	// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Event, error)

	// ListByOwnerID は指定ユーザーが所有するイベントを開催日降順（新しい順）で返す。
	ListByOwnerID(ctx context.Context, ownerID string) ([]*model.Event, error)

	// Create はイベントを作成する。created_at、updated_atは書き込み時に設定される。
	Create(ctx context.Context, event *model.Event) error

	// UpdateOwned は所有者が一致する場合のみイベントを更新する。
	// 所有者条件は単一のUPDATE文に含め、確認と更新をアトミックに行う。
	// 更新された場合はtrueを返す。イベントが存在しないか所有者不一致の場合はfalseを返す。
	UpdateOwned(ctx context.Context, event *model.Event) (bool, error)

	// DeleteOwned は所有者が一致する場合のみイベントを削除する。
	// 削除された場合はtrueを返す。
	DeleteOwned(ctx context.Context, id, ownerID string) (bool, error)

	// MetricsByOwnerID は指定ユーザーのダッシュボード集計値を返す。
	MetricsByOwnerID(ctx context.Context, ownerID string) (*model.DashboardMetrics, error)
}

// ContactMessageRepository は問い合わせメッセージの永続化インターフェース。
type ContactMessageRepository interface {
	// Create は問い合わせメッセージを保存する。
	Create(ctx context.Context, msg *model.ContactMessage) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
