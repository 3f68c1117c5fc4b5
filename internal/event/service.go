// Package event はイベント管理のドメインロジックを提供する。
// 所有者ベースのアクセス制御、入力検証、説明文HTMLの保存時サニタイズを担う。
package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/eventmaster/internal/model"
	"github.com/hitoshi/eventmaster/internal/repository"
	"github.com/hitoshi/eventmaster/internal/security"
)

// EventMetrics はイベント操作のメトリクス記録インターフェース。
type EventMetrics interface {
	RecordEventCreated()
	RecordAuthorizationDenied()
}

// CreateInput はイベント作成の入力。
type CreateInput struct {
	Name            string
	Date            time.Time
	Location        string
	MaxParticipants int
	DescriptionHTML string
}

// UpdateInput はイベント更新の入力。作成と同じ全項目を受け取る。
type UpdateInput = CreateInput

// Service はイベント管理のサービス層。
// すべての書き込み操作は操作主体（actorID）の所有権チェックを通る。
type Service struct {
	eventRepo repository.EventRepository
	sanitizer security.ContentSanitizerService
	metrics   EventMetrics
}

// NewService はServiceを生成する。
// metricsはnilでもよい（テスト等でメトリクスを記録しない場合）。
func NewService(eventRepo repository.EventRepository, sanitizer security.ContentSanitizerService, metrics EventMetrics) *Service {
	return &Service{
		eventRepo: eventRepo,
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

// Create はイベントを新規作成する。
// 所有者は認証済みの操作主体から設定し、リクエスト本文からは受け取らない。
// 説明文HTMLは保存前にサニタイズされる。
func (s *Service) Create(ctx context.Context, actorID string, input CreateInput) (*model.Event, error) {
	if err := validateEventInput(input); err != nil {
		return nil, err
	}

	event := &model.Event{
		ID:              uuid.New().String(),
		OwnerID:         actorID,
		Name:            strings.TrimSpace(input.Name),
		Date:            input.Date,
		Location:        strings.TrimSpace(input.Location),
		MaxParticipants: input.MaxParticipants,
		DescriptionHTML: s.sanitizer.Sanitize(input.DescriptionHTML),
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordEventCreated()
	}
	slog.Info("event created",
		slog.String("event_id", event.ID),
		slog.String("owner_id", actorID),
	)

	return event, nil
}

// Get は指定IDのイベントを取得する。公開詳細ページ用で所有者チェックは行わない。
func (s *Service) Get(ctx context.Context, id string) (*model.Event, error) {
	event, err := s.eventRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError()
	}
	return event, nil
}

// ListByOwner は操作主体が所有するイベントを開催日降順（新しい順）で返す。
func (s *Service) ListByOwner(ctx context.Context, actorID string) ([]*model.Event, error) {
	events, err := s.eventRepo.ListByOwnerID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// Update は所有者のみがイベントを更新できる。
// イベントが存在しない場合と所有者不一致の場合は、外部からは区別できない
// 同一のエラーを返す。所有権の判定と更新は単一のUPDATE文でアトミックに行う。
func (s *Service) Update(ctx context.Context, actorID, eventID string, input UpdateInput) (*model.Event, error) {
	if err := validateEventInput(input); err != nil {
		return nil, err
	}

	event := &model.Event{
		ID:              eventID,
		OwnerID:         actorID,
		Name:            strings.TrimSpace(input.Name),
		Date:            input.Date,
		Location:        strings.TrimSpace(input.Location),
		MaxParticipants: input.MaxParticipants,
		DescriptionHTML: s.sanitizer.Sanitize(input.DescriptionHTML),
	}

	updated, err := s.eventRepo.UpdateOwned(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	if !updated {
		s.logDenied(ctx, actorID, eventID, "update")
		return nil, model.NewEventNotFoundError()
	}

	// 更新後の値（created_at等を含む）を返すため再取得する
	return s.Get(ctx, eventID)
}

// Delete は所有者のみがイベントを削除できる。
// 不在と所有者不一致は外部からは区別できない。
func (s *Service) Delete(ctx context.Context, actorID, eventID string) error {
	deleted, err := s.eventRepo.DeleteOwned(ctx, eventID, actorID)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if !deleted {
		s.logDenied(ctx, actorID, eventID, "delete")
		return model.NewEventNotFoundError()
	}

	slog.Info("event deleted",
		slog.String("event_id", eventID),
		slog.String("owner_id", actorID),
	)
	return nil
}

// Metrics は操作主体のダッシュボード集計値を返す。
func (s *Service) Metrics(ctx context.Context, actorID string) (*model.DashboardMetrics, error) {
	metrics, err := s.eventRepo.MetricsByOwnerID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate dashboard metrics: %w", err)
	}
	return metrics, nil
}

// logDenied は書き込み失敗の内部的な原因（不在か所有者不一致か）をログに残す。
// 外部応答は常に同一のため、運用上の切り分けはこのログで行う。
func (s *Service) logDenied(ctx context.Context, actorID, eventID, op string) {
	existing, err := s.eventRepo.FindByID(ctx, eventID)
	if err != nil {
		slog.Error("failed to inspect event after denied write",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		return
	}
	if existing == nil {
		slog.Info("event write target not found",
			slog.String("event_id", eventID),
			slog.String("op", op),
		)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordAuthorizationDenied()
	}
	slog.Warn("event write denied: actor is not the owner",
		slog.String("event_id", eventID),
		slog.String("actor_id", actorID),
		slog.String("op", op),
	)
}

// validateEventInput はイベントの入力値を検証する。
func validateEventInput(input CreateInput) error {
	nameLen := utf8.RuneCountInString(strings.TrimSpace(input.Name))
	if nameLen < 3 {
		return model.NewValidationError("イベント名は3文字以上で入力してください")
	}
	if nameLen > 120 {
		return model.NewValidationError("イベント名は120文字以内で入力してください")
	}

	if input.Date.IsZero() {
		return model.NewValidationError("開催日時を指定してください")
	}
	if !input.Date.After(time.Now()) {
		return model.NewValidationError("開催日時は未来の日時を指定してください")
	}

	locLen := utf8.RuneCountInString(strings.TrimSpace(input.Location))
	if locLen < 3 {
		return model.NewValidationError("開催場所は3文字以上で入力してください")
	}
	if locLen > 140 {
		return model.NewValidationError("開催場所は140文字以内で入力してください")
	}

	if input.MaxParticipants < 0 {
		return model.NewValidationError("最大参加人数は0以上で指定してください")
	}

	return nil
}
