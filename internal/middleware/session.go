// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const sessionCookieName = "session_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// TokenValidator はセッショントークンの検証インターフェース。
// 検証に成功した場合はユーザーIDを返す。失敗理由は呼び出し側に開示しない。
type TokenValidator interface {
	Validate(token string) (string, error)
}

// TokenFailureMetrics はトークン検証失敗のメトリクス記録インターフェース。
type TokenFailureMetrics interface {
	RecordTokenValidationFailure()
}

// NewSessionMiddleware はリクエストからセッショントークンを読み取り、
// 検証するミドルウェアを返す。トークンはHTTP Only Cookieまたは
// Authorization: Bearerヘッダーから取得する（Cookie優先）。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// トークン欠落・改ざん・期限切れはすべて同じ401 Unauthorizedを返す。
func NewSessionMiddleware(validator TokenValidator, metrics TokenFailureMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			userID, err := validator.Validate(token)
			if err != nil {
				if metrics != nil {
					metrics.RecordTokenValidationFailure()
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken はCookieまたはAuthorizationヘッダーからトークンを取り出す。
func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok && token != "" {
		return token
	}

	return ""
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
