package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyFuncs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var byIP, byRoute string
	r.GET("/auth/login", func(c *gin.Context) {
		byIP = KeyByClientIP()(c)
		byRoute = KeyByClientIPAndRoute()(c)
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if byIP != "ip:203.0.113.9" {
		t.Fatalf("KeyByClientIP = %q", byIP)
	}
	if byRoute != "ip:203.0.113.9|/auth/login" {
		t.Fatalf("KeyByClientIPAndRoute = %q", byRoute)
	}
}

func TestNewEdgeLimiter_Defaults(t *testing.T) {
	l := NewEdgeLimiter(2, 0, nil)
	if l.burst != 1 || l.keyFn == nil {
		t.Fatalf("defaults not applied: burst=%d keyFn=%v", l.burst, l.keyFn != nil)
	}
	now := time.Now()
	if l.limiterFor("k1", now) != l.limiterFor("k1", now) {
		t.Fatalf("expected bucket reuse")
	}
}

func TestEdgeLimiter_SweepsIdleBuckets(t *testing.T) {
	l := NewEdgeLimiter(1, 1, nil)
	now := time.Now()

	l.mu.Lock()
	l.buckets["old"] = &bucket{lim: rate.NewLimiter(1, 1), lastSeen: now.Add(-time.Hour)}
	l.buckets["fresh"] = &bucket{lim: rate.NewLimiter(1, 1), lastSeen: now}
	l.lookups = edgeSweepEvery - 1
	l.mu.Unlock()

	_ = l.limiterFor("new", now)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets["old"]; ok {
		t.Fatalf("idle bucket not swept")
	}
	for _, k := range []string{"fresh", "new"} {
		if _, ok := l.buckets[k]; !ok {
			t.Fatalf("bucket %q missing", k)
		}
	}
}

func TestEdgeLimiter_WaitDoesNotConsumeOnReject(t *testing.T) {
	l := NewEdgeLimiter(1, 1, nil)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	if d := l.wait("k"); d != 0 {
		t.Fatalf("first wait = %v", d)
	}
	d1 := l.wait("k")
	d2 := l.wait("k")
	if d1 <= 0 || d1 != d2 {
		t.Fatalf("rejected reservations must be cancelled: %v then %v", d1, d2)
	}

	now = now.Add(time.Second)
	if d := l.wait("k"); d != 0 {
		t.Fatalf("token should have refilled, wait = %v", d)
	}
}

func TestEdgeLimiter_ZeroRate(t *testing.T) {
	l := NewEdgeLimiter(0, 1, nil)
	if d := l.wait("k"); d != 0 {
		t.Fatalf("burst token should admit, wait = %v", d)
	}
	if d := l.wait("k"); d != edgeNeverRetry {
		t.Fatalf("zero rate wait = %v; want %v", d, edgeNeverRetry)
	}
}

func TestEdgeLimiter_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l := NewEdgeLimiter(0.5, 1, KeyByClientIP())
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	r := gin.New()
	r.Use(l.Handler())
	r.POST("/auth/login", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("first request should pass through, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After = %q; want 2", got)
	}
	var body AuthError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Error != edgeReasonLimit || body.ResetTime != now.Add(2*time.Second).UTC().Format(time.RFC3339) {
		t.Fatalf("unexpected body: %+v", body)
	}

	// Another client has its own bucket.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = net.JoinHostPort("198.51.100.4", "4000")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("other client should pass through, got %d", w.Code)
	}
}
