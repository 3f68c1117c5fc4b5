package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/eventmaster/internal/auth"
	"github.com/hitoshi/eventmaster/internal/contact"
	"github.com/hitoshi/eventmaster/internal/event"
	"github.com/hitoshi/eventmaster/internal/middleware"
	"github.com/hitoshi/eventmaster/internal/model"
	"github.com/hitoshi/eventmaster/internal/repository"
	"github.com/hitoshi/eventmaster/internal/security"
	"github.com/hitoshi/eventmaster/internal/user"
)

// --- インメモリリポジトリ ---

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

var _ repository.UserRepository = (*memUserRepo)(nil)

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*model.User)}
}

func (r *memUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(ctx context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	copied := *u
	r.users[u.ID] = &copied
	return nil
}

func (r *memUserRepo) CreateWithIdentity(ctx context.Context, u *model.User, identity *model.Identity) error {
	return r.Create(ctx, u)
}

func (r *memUserRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

type memIdentityRepo struct{}

var _ repository.IdentityRepository = (*memIdentityRepo)(nil)

func (r *memIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	return nil, nil
}

func (r *memIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	return nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events map[string]*model.Event
}

var _ repository.EventRepository = (*memEventRepo)(nil)

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: make(map[string]*model.Event)}
}

func (r *memEventRepo) FindByID(ctx context.Context, id string) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (r *memEventRepo) ListByOwnerID(ctx context.Context, ownerID string) ([]*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*model.Event
	for _, e := range r.events {
		if e.OwnerID == ownerID {
			copied := *e
			result = append(result, &copied)
		}
	}
	// 本番クエリと同じ開催日降順（新しい順）
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})
	return result, nil
}

func (r *memEventRepo) Create(ctx context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	copied := *e
	r.events[e.ID] = &copied
	return nil
}

func (r *memEventRepo) UpdateOwned(ctx context.Context, e *model.Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.events[e.ID]
	if !ok || existing.OwnerID != e.OwnerID {
		return false, nil
	}
	existing.Name = e.Name
	existing.Date = e.Date
	existing.Location = e.Location
	existing.MaxParticipants = e.MaxParticipants
	existing.DescriptionHTML = e.DescriptionHTML
	existing.UpdatedAt = time.Now()
	return true, nil
}

func (r *memEventRepo) DeleteOwned(ctx context.Context, id, ownerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.events[id]
	if !ok || existing.OwnerID != ownerID {
		return false, nil
	}
	delete(r.events, id)
	return true, nil
}

func (r *memEventRepo) MetricsByOwnerID(ctx context.Context, ownerID string) (*model.DashboardMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	metrics := &model.DashboardMetrics{}
	now := time.Now()
	for _, e := range r.events {
		if e.OwnerID != ownerID {
			continue
		}
		metrics.TotalEvents++
		metrics.TotalParticipants += e.MaxParticipants
		if e.Date.After(now) {
			metrics.UpcomingEvents++
		}
	}
	return metrics, nil
}

type memContactRepo struct {
	mu       sync.Mutex
	messages []*model.ContactMessage
}

var _ repository.ContactMessageRepository = (*memContactRepo)(nil)

func (r *memContactRepo) Create(ctx context.Context, msg *model.ContactMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *msg
	r.messages = append(r.messages, &copied)
	return nil
}

// stubOAuthProvider はテストで使用しないOAuthプロバイダーのスタブ。
type stubOAuthProvider struct{}

var _ auth.OAuthProvider = (*stubOAuthProvider)(nil)

func (p *stubOAuthProvider) GetLoginURL(state string) string {
	return "https://example.com/oauth?state=" + state
}

func (p *stubOAuthProvider) ExchangeCode(ctx context.Context, code string) (*auth.OAuthUserInfo, error) {
	return nil, fmt.Errorf("not implemented in test")
}

// --- テストクライアント ---

// apiClient はCookieを保持しながらルーターへリクエストを送るテストヘルパー。
type apiClient struct {
	t       *testing.T
	router  http.Handler
	cookies map[string]*http.Cookie
}

func newAPIClient(t *testing.T, router http.Handler) *apiClient {
	return &apiClient{
		t:       t,
		router:  router,
		cookies: make(map[string]*http.Cookie),
	}
}

func (c *apiClient) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	c.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	// レスポンスのSet-Cookieを保持（MaxAge<0は削除扱い）
	for _, cookie := range w.Result().Cookies() {
		if cookie.MaxAge < 0 {
			delete(c.cookies, cookie.Name)
		} else {
			c.cookies[cookie.Name] = cookie
		}
	}

	return w
}

// csrfToken はCSRFトークンを取得して返す。
func (c *apiClient) csrfToken() string {
	c.t.Helper()
	w := c.do(http.MethodGet, "/api/csrf-token", "", nil)
	if w.Code != http.StatusOK {
		c.t.Fatalf("csrf token request failed: status=%d", w.Code)
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	return resp["token"]
}

// registerAndLogin はユーザー登録とログインを行う。
func (c *apiClient) registerAndLogin(name, email, password string) {
	c.t.Helper()

	body := fmt.Sprintf(`{"name":%q,"email":%q,"password":%q}`, name, email, password)
	w := c.do(http.MethodPost, "/api/auth/register", body, nil)
	if w.Code != http.StatusCreated {
		c.t.Fatalf("register failed: status=%d body=%s", w.Code, w.Body.String())
	}

	loginBody := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	w = c.do(http.MethodPost, "/api/auth/login", loginBody, nil)
	if w.Code != http.StatusOK {
		c.t.Fatalf("login failed: status=%d body=%s", w.Code, w.Body.String())
	}
	if _, ok := c.cookies["session_token"]; !ok {
		c.t.Fatal("session_token cookie should be set after login")
	}
}

// newTestRouter は実サービスとインメモリリポジトリでルーターを構成する。
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	userRepo := newMemUserRepo()
	eventRepo := newMemEventRepo()

	issuer := auth.NewTokenIssuer("integration-test-secret", time.Hour)
	authService := auth.NewService(
		&stubOAuthProvider{},
		userRepo,
		&memIdentityRepo{},
		auth.NewPasswordHasher(bcrypt.MinCost),
		issuer,
		nil,
	)
	eventService := event.NewService(eventRepo, security.NewContentSanitizer(), nil)
	contactService := contact.NewService(&memContactRepo{})
	userService := user.NewService(userRepo)

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rateLimiter.Stop)

	return NewRouter(&RouterDeps{
		TokenValidator:    issuer,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rateLimiter,
		CSRFConfig:        middleware.CSRFConfig{},
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		AuthService:       authService,
		AuthConfig: AuthHandlerConfig{
			BaseURL:       "http://localhost:3000",
			SessionMaxAge: 86400,
		},
		EventService:   eventService,
		ContactService: contactService,
		UserService:    userService,
	})
}

func futureDate() string {
	return time.Now().AddDate(0, 6, 0).UTC().Format(time.RFC3339)
}

// TestRouter_EventOwnership は別ユーザーのイベントへの書き込みが
// 存在しないイベントへの書き込みと区別できないことをエンドツーエンドで検証する。
func TestRouter_EventOwnership(t *testing.T) {
	router := newTestRouter(t)

	// aliceが登録・ログインしてイベントを作成
	alice := newAPIClient(t, router)
	alice.registerAndLogin("佐藤花子", "alice@example.com", "password-alice")
	aliceCSRF := alice.csrfToken()

	createBody := fmt.Sprintf(
		`{"name":"Goカンファレンス","date":%q,"location":"東京国際フォーラム","maxParticipants":200,"description":"<p>年次カンファレンス</p>"}`,
		futureDate(),
	)
	w := alice.do(http.MethodPost, "/api/events", createBody, map[string]string{"X-CSRF-Token": aliceCSRF})
	if w.Code != http.StatusCreated {
		t.Fatalf("event create failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var created eventResponse
	json.NewDecoder(w.Body).Decode(&created)
	if created.ID == "" {
		t.Fatal("created event should have an ID")
	}

	// bobが登録・ログイン
	bob := newAPIClient(t, router)
	bob.registerAndLogin("鈴木一郎", "bob@example.com", "password-bob")
	bobCSRF := bob.csrfToken()

	updateBody := fmt.Sprintf(
		`{"name":"乗っ取りイベント","date":%q,"location":"どこか遠く","maxParticipants":1,"description":"<p>改ざん</p>"}`,
		futureDate(),
	)

	// bobによるaliceのイベント更新は404
	denied := bob.do(http.MethodPut, "/api/events/"+created.ID, updateBody, map[string]string{"X-CSRF-Token": bobCSRF})
	if denied.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", denied.Code, http.StatusNotFound)
	}

	// 存在しないIDへの更新と同一のレスポンスであること（存在の漏洩防止）
	missing := bob.do(http.MethodPut, "/api/events/00000000-0000-0000-0000-000000000000", updateBody, map[string]string{"X-CSRF-Token": bobCSRF})
	if missing.Code != denied.Code {
		t.Errorf("status mismatch: denied=%d missing=%d", denied.Code, missing.Code)
	}
	if denied.Body.String() != missing.Body.String() {
		t.Errorf("response bodies should be identical:\ndenied:  %s\nmissing: %s", denied.Body.String(), missing.Body.String())
	}

	// イベントは変更されていないこと（公開エンドポイントで確認）
	view := alice.do(http.MethodGet, "/api/events/"+created.ID, "", nil)
	if view.Code != http.StatusOK {
		t.Fatalf("event get failed: status=%d", view.Code)
	}
	var after eventResponse
	json.NewDecoder(view.Body).Decode(&after)
	if after.Name != "Goカンファレンス" {
		t.Errorf("event name = %q, should be unchanged", after.Name)
	}

	// bobによる削除も404
	deleteDenied := bob.do(http.MethodDelete, "/api/events/"+created.ID, "", map[string]string{"X-CSRF-Token": bobCSRF})
	if deleteDenied.Code != http.StatusNotFound {
		t.Errorf("delete status = %d, want %d", deleteDenied.Code, http.StatusNotFound)
	}

	// 所有者本人による更新は成功
	ownerUpdate := fmt.Sprintf(
		`{"name":"Goカンファレンス2027","date":%q,"location":"東京国際フォーラム","maxParticipants":300,"description":"<p>年次カンファレンス</p>"}`,
		futureDate(),
	)
	ok := alice.do(http.MethodPut, "/api/events/"+created.ID, ownerUpdate, map[string]string{"X-CSRF-Token": aliceCSRF})
	if ok.Code != http.StatusOK {
		t.Fatalf("owner update failed: status=%d body=%s", ok.Code, ok.Body.String())
	}
	var updated eventResponse
	json.NewDecoder(ok.Body).Decode(&updated)
	if updated.Name != "Goカンファレンス2027" || updated.MaxParticipants != 300 {
		t.Errorf("unexpected updated event: %+v", updated)
	}
}

// TestRouter_SanitizationOnWrite はイベント説明文のサニタイズが
// 保存時に行われることをエンドツーエンドで検証する。
func TestRouter_SanitizationOnWrite(t *testing.T) {
	router := newTestRouter(t)

	client := newAPIClient(t, router)
	client.registerAndLogin("佐藤花子", "alice@example.com", "password-alice")
	csrf := client.csrfToken()

	body := fmt.Sprintf(
		`{"name":"Go勉強会","date":%q,"location":"東京都渋谷区","maxParticipants":30,"description":"<p>概要</p><script>alert('xss')</script>"}`,
		futureDate(),
	)
	w := client.do(http.MethodPost, "/api/events", body, map[string]string{"X-CSRF-Token": csrf})
	if w.Code != http.StatusCreated {
		t.Fatalf("event create failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var created eventResponse
	json.NewDecoder(w.Body).Decode(&created)
	if strings.Contains(created.Description, "<script>") || strings.Contains(created.Description, "alert") {
		t.Errorf("description should be sanitized, got %q", created.Description)
	}
	if !strings.Contains(created.Description, "<p>概要</p>") {
		t.Errorf("allowed markup should survive, got %q", created.Description)
	}

	// 公開エンドポイントから読んでもサニタイズ済み
	view := client.do(http.MethodGet, "/api/events/"+created.ID, "", nil)
	var got eventResponse
	json.NewDecoder(view.Body).Decode(&got)
	if strings.Contains(got.Description, "script") {
		t.Errorf("stored description should be sanitized, got %q", got.Description)
	}
}

// TestRouter_ProtectedRoutesRequireAuth は保護ルートが未認証リクエストを拒否することを検証する。
func TestRouter_ProtectedRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t)
	client := newAPIClient(t, router)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"イベント一覧", http.MethodGet, "/api/events"},
		{"イベント作成", http.MethodPost, "/api/events"},
		{"ダッシュボード", http.MethodGet, "/api/dashboard/metrics"},
		{"ログインユーザー情報", http.MethodGet, "/api/auth/me"},
		{"退会", http.MethodDelete, "/api/users/me"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := client.do(tt.method, tt.path, "", nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

// TestRouter_CSRFProtection は状態変更リクエストにCSRFトークンが必須であることを検証する。
func TestRouter_CSRFProtection(t *testing.T) {
	router := newTestRouter(t)

	client := newAPIClient(t, router)
	client.registerAndLogin("佐藤花子", "alice@example.com", "password-alice")

	body := fmt.Sprintf(
		`{"name":"Go勉強会","date":%q,"location":"東京都渋谷区","maxParticipants":30,"description":""}`,
		futureDate(),
	)

	// CSRFトークンなしのPOSTは403
	w := client.do(http.MethodPost, "/api/events", body, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}

	// トークン取得後は成功する
	csrf := client.csrfToken()
	w = client.do(http.MethodPost, "/api/events", body, map[string]string{"X-CSRF-Token": csrf})
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
}

// TestRouter_WithdrawRemovesUser は退会後にログインユーザー情報が取得できなくなることを検証する。
func TestRouter_WithdrawRemovesUser(t *testing.T) {
	router := newTestRouter(t)

	client := newAPIClient(t, router)
	client.registerAndLogin("佐藤花子", "alice@example.com", "password-alice")
	csrf := client.csrfToken()

	w := client.do(http.MethodDelete, "/api/users/me", "", map[string]string{"X-CSRF-Token": csrf})
	if w.Code != http.StatusNoContent {
		t.Fatalf("withdraw failed: status=%d body=%s", w.Code, w.Body.String())
	}

	// トークン自体はまだ有効だが、ユーザーが存在しないため404
	me := client.do(http.MethodGet, "/api/auth/me", "", nil)
	if me.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", me.Code, http.StatusNotFound)
	}
}

// TestRouter_ContactSubmission は問い合わせフォームが未認証で利用できることを検証する。
func TestRouter_ContactSubmission(t *testing.T) {
	router := newTestRouter(t)
	client := newAPIClient(t, router)

	body := `{"name":"山田太郎","email":"taro@example.com","message":"会場の設備について教えてください。"}`
	w := client.do(http.MethodPost, "/api/contact", body, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["id"] == "" {
		t.Error("response should contain a message ID")
	}
}

// TestRouter_RegisterDuplicateEmailIgnoresCase はメールアドレスの一意性が
// 大文字小文字を区別しないことをエンドツーエンドで検証する。
func TestRouter_RegisterDuplicateEmailIgnoresCase(t *testing.T) {
	router := newTestRouter(t)

	first := newAPIClient(t, router)
	first.registerAndLogin("佐藤花子", "Alice@example.com", "password-alice")

	second := newAPIClient(t, router)
	body := `{"name":"偽の花子","email":"alice@example.com","password":"password-other"}`
	w := second.do(http.MethodPost, "/api/auth/register", body, nil)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d body=%s", w.Code, http.StatusConflict, w.Body.String())
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["code"] != "EMAIL_TAKEN" {
		t.Errorf("code = %q, want %q", resp["code"], "EMAIL_TAKEN")
	}
}

// TestRouter_ListEventsNewestFirst はイベント一覧が開催日の新しい順で
// 返されることを検証する。ダッシュボードの表示順に合わせている。
func TestRouter_ListEventsNewestFirst(t *testing.T) {
	router := newTestRouter(t)

	client := newAPIClient(t, router)
	client.registerAndLogin("佐藤花子", "alice@example.com", "password-alice")
	csrf := client.csrfToken()

	near := time.Now().AddDate(0, 1, 0).UTC().Format(time.RFC3339)
	far := time.Now().AddDate(0, 9, 0).UTC().Format(time.RFC3339)

	for _, ev := range []struct {
		name string
		date string
	}{
		{"直近の勉強会", near},
		{"来期のカンファレンス", far},
	} {
		body := fmt.Sprintf(
			`{"name":%q,"date":%q,"location":"渋谷コワーキング","maxParticipants":30,"description":""}`,
			ev.name, ev.date,
		)
		w := client.do(http.MethodPost, "/api/events", body, map[string]string{"X-CSRF-Token": csrf})
		if w.Code != http.StatusCreated {
			t.Fatalf("event create failed: status=%d body=%s", w.Code, w.Body.String())
		}
	}

	w := client.do(http.MethodGet, "/api/events", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("event list failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var events []eventResponse
	json.NewDecoder(w.Body).Decode(&events)
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Name != "来期のカンファレンス" || events[1].Name != "直近の勉強会" {
		t.Errorf("events should be ordered newest first, got [%q, %q]", events[0].Name, events[1].Name)
	}
}
