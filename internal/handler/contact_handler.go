package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/eventmaster/internal/model"
)

// ContactServiceInterface は問い合わせハンドラーが必要とするサービスインターフェース。
type ContactServiceInterface interface {
	Submit(ctx context.Context, name, email, message string) (*model.ContactMessage, error)
}

// ContactMetrics は問い合わせ受付数のメトリクス記録インターフェース。
type ContactMetrics interface {
	RecordContactMessage()
}

// ContactHandler は問い合わせフォームのHTTPハンドラー。
type ContactHandler struct {
	service ContactServiceInterface
	metrics ContactMetrics
}

// NewContactHandler はContactHandlerを生成する。metricsはnil許容。
func NewContactHandler(service ContactServiceInterface, metrics ContactMetrics) *ContactHandler {
	return &ContactHandler{
		service: service,
		metrics: metrics,
	}
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Submit は問い合わせメッセージを受け付ける。公開エンドポイントで認証不要。
// POST /api/contact
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	msg, err := h.service.Submit(r.Context(), req.Name, req.Email, req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordContactMessage()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": msg.ID})
}
