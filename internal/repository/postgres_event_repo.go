package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/eventmaster/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

const eventColumns = `id, owner_id, name, date, location, max_participants, description_html, created_at, updated_at`

// FindByID は指定IDのイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	event := &model.Event{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`,
		id,
	).Scan(
		&event.ID, &event.OwnerID, &event.Name, &event.Date, &event.Location,
		&event.MaxParticipants, &event.DescriptionHTML, &event.CreatedAt, &event.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event by ID: %w", err)
	}

	return event, nil
}

// ListByOwnerID は指定ユーザーが所有するイベントを開催日降順（新しい順）で返す。
func (r *PostgresEventRepo) ListByOwnerID(ctx context.Context, ownerID string) ([]*model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE owner_id = $1 ORDER BY date DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event := &model.Event{}
		if err := rows.Scan(
			&event.ID, &event.OwnerID, &event.Name, &event.Date, &event.Location,
			&event.MaxParticipants, &event.DescriptionHTML, &event.CreatedAt, &event.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// Create はイベントを作成する。created_at、updated_atは書き込み時に設定される。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, owner_id, name, date, location, max_participants, description_html, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.OwnerID, event.Name, event.Date, event.Location,
		event.MaxParticipants, event.DescriptionHTML, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// UpdateOwned は所有者が一致する場合のみイベントを更新する。
// 所有者条件をUPDATE文のWHERE句に含めることで、確認と更新をアトミックに行う。
// 更新された場合はtrueを返す。
func (r *PostgresEventRepo) UpdateOwned(ctx context.Context, event *model.Event) (bool, error) {
	event.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx,
		`UPDATE events
		 SET name = $1, date = $2, location = $3, max_participants = $4,
		     description_html = $5, updated_at = $6
		 WHERE id = $7 AND owner_id = $8`,
		event.Name, event.Date, event.Location, event.MaxParticipants,
		event.DescriptionHTML, event.UpdatedAt,
		event.ID, event.OwnerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// DeleteOwned は所有者が一致する場合のみイベントを削除する。
// 削除された場合はtrueを返す。
func (r *PostgresEventRepo) DeleteOwned(ctx context.Context, id, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// MetricsByOwnerID は指定ユーザーのダッシュボード集計値を返す。
func (r *PostgresEventRepo) MetricsByOwnerID(ctx context.Context, ownerID string) (*model.DashboardMetrics, error) {
	metrics := &model.DashboardMetrics{}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(max_participants), 0),
		        COUNT(*) FILTER (WHERE date > now())
		 FROM events WHERE owner_id = $1`,
		ownerID,
	).Scan(&metrics.TotalEvents, &metrics.TotalParticipants, &metrics.UpcomingEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate event metrics: %w", err)
	}

	return metrics, nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
