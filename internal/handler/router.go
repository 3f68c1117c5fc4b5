package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/eventmaster/internal/middleware"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ミドルウェア依存
	TokenValidator    middleware.TokenValidator
	TokenMetrics      middleware.TokenFailureMetrics
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// イベント
	EventService EventServiceInterface

	// 問い合わせ
	ContactService ContactServiceInterface
	ContactMetrics ContactMetrics

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS →
//	  公開ルート: RateLimit(Strict) のみ
//	  保護ルート: Session → RateLimit(General) → CSRF
//
// 認証前に叩かれる公開エンドポイント（登録・ログイン・問い合わせ）には
// クライアントIP単位の厳格レート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	eventHandler := NewEventHandler(deps.EventService)
	contactHandler := NewContactHandler(deps.ContactService, deps.ContactMetrics)
	userHandler := NewUserHandler(deps.UserService)

	// --- 運用エンドポイント ---

	// ヘルスチェック（DB疎通を含む）
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				http.Error(w, "database unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheusメトリクス
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---

	// OAuthフロー
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)
	})

	// パスワード認証（総当たり対策として厳格レート制限）
	r.With(deps.RateLimiter.StrictMiddleware()).Post("/api/auth/register", authHandler.Register)
	r.With(deps.RateLimiter.StrictMiddleware()).Post("/api/auth/login", authHandler.Login)
	r.Post("/api/auth/logout", authHandler.Logout)

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// イベント詳細は公開（閲覧のみ）
	r.Get("/api/events/{eventID}", eventHandler.Get)

	// 問い合わせ（スパム対策として厳格レート制限）
	r.With(deps.RateLimiter.StrictMiddleware()).Post("/api/contact", contactHandler.Submit)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.TokenValidator, deps.TokenMetrics))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/api/auth/me", authHandler.Me)

		// イベント管理
		// GET /api/events/{eventID} は公開ルート側で登録済み
		r.Get("/api/events", eventHandler.List)
		r.Post("/api/events", eventHandler.Create)
		r.Put("/api/events/{eventID}", eventHandler.Update)
		r.Delete("/api/events/{eventID}", eventHandler.Delete)

		// ダッシュボード
		r.Get("/api/dashboard/metrics", eventHandler.Dashboard)

		// ユーザー管理
		r.Delete("/api/users/me", userHandler.Withdraw)
	})

	return r
}
