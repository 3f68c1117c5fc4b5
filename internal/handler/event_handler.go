package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/eventmaster/internal/event"
	"github.com/hitoshi/eventmaster/internal/middleware"
	"github.com/hitoshi/eventmaster/internal/model"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	Create(ctx context.Context, actorID string, input event.CreateInput) (*model.Event, error)
	Get(ctx context.Context, id string) (*model.Event, error)
	ListByOwner(ctx context.Context, actorID string) ([]*model.Event, error)
	Update(ctx context.Context, actorID, eventID string, input event.UpdateInput) (*model.Event, error)
	Delete(ctx context.Context, actorID, eventID string) error
	Metrics(ctx context.Context, actorID string) (*model.DashboardMetrics, error)
}

// EventHandler はイベント関連のHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

type eventRequest struct {
	Name            string `json:"name"`
	Date            string `json:"date"` // RFC3339形式
	Location        string `json:"location"`
	MaxParticipants int    `json:"maxParticipants"`
	Description     string `json:"description"` // HTMLフラグメント
}

type eventResponse struct {
	ID              string `json:"id"`
	OwnerID         string `json:"ownerId"`
	Name            string `json:"name"`
	Date            string `json:"date"`
	Location        string `json:"location"`
	MaxParticipants int    `json:"maxParticipants"`
	Description     string `json:"description"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

func toEventResponse(e *model.Event) eventResponse {
	return eventResponse{
		ID:              e.ID,
		OwnerID:         e.OwnerID,
		Name:            e.Name,
		Date:            e.Date.Format(time.RFC3339),
		Location:        e.Location,
		MaxParticipants: e.MaxParticipants,
		Description:     e.DescriptionHTML,
		CreatedAt:       e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       e.UpdatedAt.Format(time.RFC3339),
	}
}

// parseEventRequest はリクエストボディをCreateInputに変換する。
// 日付の形式エラーはバリデーションエラーとして返す。
func parseEventRequest(r *http.Request) (event.CreateInput, error) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return event.CreateInput{}, err
	}

	date, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		return event.CreateInput{}, model.NewValidationError("開催日時はRFC3339形式で指定してください")
	}

	return event.CreateInput{
		Name:            req.Name,
		Date:            date,
		Location:        req.Location,
		MaxParticipants: req.MaxParticipants,
		DescriptionHTML: req.Description,
	}, nil
}

// Create は新規イベントを作成する。
// POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	input, err := parseEventRequest(r)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			handleServiceError(w, err)
		} else {
			writeInvalidRequestBody(w)
		}
		return
	}

	created, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toEventResponse(created))
}

// Get はイベントの詳細を返す。公開エンドポイントで認証不要。
// GET /api/events/{eventID}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	found, err := h.service.Get(r.Context(), eventID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toEventResponse(found))
}

// List はログインユーザーが所有するイベントの一覧を返す。
// GET /api/events
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	events, err := h.service.ListByOwner(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]eventResponse, 0, len(events))
	for _, e := range events {
		responses = append(responses, toEventResponse(e))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// Update は所有するイベントを更新する。
// PUT /api/events/{eventID}
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	eventID := chi.URLParam(r, "eventID")

	input, err := parseEventRequest(r)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			handleServiceError(w, err)
		} else {
			writeInvalidRequestBody(w)
		}
		return
	}

	updated, err := h.service.Update(r.Context(), userID, eventID, event.UpdateInput(input))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toEventResponse(updated))
}

// Delete は所有するイベントを削除する。
// DELETE /api/events/{eventID}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	eventID := chi.URLParam(r, "eventID")

	if err := h.service.Delete(r.Context(), userID, eventID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Dashboard はログインユーザーのダッシュボード集計値を返す。
// GET /api/dashboard/metrics
func (h *EventHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	metrics, err := h.service.Metrics(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"totalEvents":       metrics.TotalEvents,
		"totalParticipants": metrics.TotalParticipants,
		"upcomingEvents":    metrics.UpcomingEvents,
	})
}
