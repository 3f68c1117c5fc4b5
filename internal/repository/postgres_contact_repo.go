package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/eventmaster/internal/model"
)

// PostgresContactMessageRepo はPostgreSQLを使用した問い合わせメッセージリポジトリ。
type PostgresContactMessageRepo struct {
	db *sql.DB
}

// NewPostgresContactMessageRepo はPostgresContactMessageRepoを生成する。
func NewPostgresContactMessageRepo(db *sql.DB) *PostgresContactMessageRepo {
	return &PostgresContactMessageRepo{db: db}
}

// Create は問い合わせメッセージを保存する。
func (r *PostgresContactMessageRepo) Create(ctx context.Context, msg *model.ContactMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contact_messages (id, name, email, message, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.Name, msg.Email, msg.Message, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contact message: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ContactMessageRepository = (*PostgresContactMessageRepo)(nil)
