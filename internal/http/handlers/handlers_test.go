package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-club-backend/internal/audience"
	"github.com/tbourn/go-club-backend/internal/auth"
	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/http/middleware"
	"github.com/tbourn/go-club-backend/internal/ratelimit"
	"github.com/tbourn/go-club-backend/internal/repo"
	"github.com/tbourn/go-club-backend/internal/services"
)

// ---------- test DB + repo shims ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection serializes the verifier's background writes with
	// request transactions; shared-cache SQLite rejects concurrent writers.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testStore implements auth.Store and audience.Directory over the repo
// package (like router.go).
type testStore struct{ db *gorm.DB }

func (s testStore) FindUserByID(ctx context.Context, id uint) (*domain.User, error) {
	return repo.FindUserByID(ctx, s.db, id)
}

func (s testStore) FindAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	return repo.FindAPIKeyByHash(ctx, s.db, hash)
}

func (s testStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	return repo.TouchAPIKey(ctx, s.db, id, at)
}

func (s testStore) ActiveUserIDs(ctx context.Context) ([]uint, error) {
	return repo.FindActiveUserIDs(ctx, s.db)
}

func (s testStore) UserIDsByRoles(ctx context.Context, ids []uint) ([]uint, error) {
	return repo.FindUserIDsByRoleIDs(ctx, s.db, ids)
}

func (s testStore) UserIDsByDivisions(ctx context.Context, ids []uint) ([]uint, error) {
	return repo.FindUserIDsByDivisionIDs(ctx, s.db, ids)
}

// recordingPublisher counts live pushes.
type recordingPublisher struct {
	mu    sync.Mutex
	calls int
	users []uint
}

func (p *recordingPublisher) PublishNotification(_ context.Context, ids []uint, _ *domain.Notification) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.users = append([]uint(nil), ids...)
	return len(ids)
}

func (p *recordingPublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// ---------- environment ----------

const testPassword = "correct-horse"

type testEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	issuer   *auth.Issuer
	pub      *recordingPublisher
	notifSvc *services.NotificationService
	admin    *domain.User
	member   *domain.User
	other    *domain.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db := newHandlerDB(t)
	store := testStore{db: db}

	admin, err := services.SeedAdmin(ctx, db, "admin", testPassword, "admin@club.test")
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	memberRole, err := repo.CreateRole(ctx, db, "member", []string{"profile:read"})
	if err != nil {
		t.Fatalf("role: %v", err)
	}
	hash, _ := services.HashPassword(testPassword)
	member := &domain.User{Username: "member", PasswordHash: hash, RoleID: memberRole.ID, IsActive: true}
	other := &domain.User{Username: "other", PasswordHash: hash, RoleID: memberRole.ID, IsActive: true}
	for _, u := range []*domain.User{member, other} {
		if err := repo.CreateUser(ctx, db, u); err != nil {
			t.Fatalf("user: %v", err)
		}
	}

	issuer := auth.NewIssuer("handlers-test-secret-0123", time.Hour, "test")
	verifier := auth.NewVerifier(store, issuer)
	t.Cleanup(verifier.Flush)

	pub := &recordingPublisher{}
	notifSvc := services.NewNotificationService(db, audience.NewResolver(store), pub)
	h := New(notifSvc, services.NewAuthService(db, issuer), services.NewAPIKeyService(db, 100))

	cl := &auth.Classifier{
		Verifier: verifier,
		Limiter:  ratelimit.New(ratelimit.NewMemoryStore(), time.Hour, 1000),
	}
	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api")
	api.POST("/auth/login", h.Login)

	gated := api.Group("", middleware.Authenticate(cl), middleware.AttachActor(verifier))
	gated.POST("/notifications",
		middleware.RequirePermission(auth.PermNotificationsSend),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}),
		h.SendNotification)

	mine := api.Group("", middleware.RequireUser(verifier))
	mine.GET("/auth/me", h.Me)
	mine.GET("/notifications", h.ListNotifications)
	mine.GET("/notifications/unread-count", h.UnreadCount)
	mine.PUT("/notifications/read-all", h.MarkAllRead)
	mine.PUT("/notifications/:id/read", h.MarkRead)

	keys := mine.Group("/api-keys", middleware.RequirePermission(auth.PermAPIKeysManage))
	keys.POST("", h.CreateAPIKey)
	keys.GET("", h.ListAPIKeys)
	keys.DELETE("/:id", h.RevokeAPIKey)

	return &testEnv{
		db: db, router: r, issuer: issuer, pub: pub, notifSvc: notifSvc,
		admin: admin, member: member, other: other,
	}
}

func (e *testEnv) token(t *testing.T, u *domain.User) string {
	t.Helper()
	tok, _, err := e.issuer.Issue(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

func (e *testEnv) do(method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v; body=%s", v, err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, want, w.Body.String())
	}
}

func TestNewPagination(t *testing.T) {
	cases := []struct {
		page, size int
		total      int64
		pages      int
		next       bool
	}{
		{1, 20, 0, 0, false},
		{1, 20, 20, 1, false},
		{1, 20, 21, 2, true},
		{2, 20, 21, 2, false},
	}
	for _, tc := range cases {
		p := newPagination(tc.page, tc.size, tc.total)
		if p.TotalPages != tc.pages || p.HasNext != tc.next {
			t.Fatalf("%+v => %+v", tc, p)
		}
	}
}

func TestClampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string][2]int{
		"":                       {1, 20},
		"?page=0&page_size=0":    {1, 1},
		"?page=3&page_size=500":  {3, 100},
		"?page=abc&page_size=-5": {1, 1},
		"?page=2&page_size=15":   {2, 15},
	}
	for q, want := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/x"+q, nil)
		p, s := clampPagination(c)
		if p != want[0] || s != want[1] {
			t.Fatalf("%q => (%d,%d), want %v", q, p, s, want)
		}
	}
}
