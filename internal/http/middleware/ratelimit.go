// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the edge limiter: a token bucket per client, applied
// to unauthenticated entry points (login, live-connection handshakes) before
// any credential is checked. It shields password hashing and token
// verification from brute force and connection storms. Per-API-key quotas
// are a separate fixed-window mechanism (internal/ratelimit, Authenticate).
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// KeyFunc selects the bucket for a request.
type KeyFunc func(*gin.Context) string

// KeyByClientIP keys buckets by the client address as resolved by Gin
// (honouring trusted proxies).
func KeyByClientIP() KeyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

// KeyByClientIPAndRoute gives each entry point its own bucket per client,
// so a reconnect storm on the live endpoint does not lock a user out of
// login.
func KeyByClientIPAndRoute() KeyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP() + "|" + c.FullPath()
	}
}

var edgeRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "http_edge_rejections_total",
	Help: "Requests rejected by the per-client edge limiter.",
}, []string{"route"})

func init() {
	prometheus.MustRegister(edgeRejections)
}

const (
	edgeIdleTTL     = 10 * time.Minute
	edgeSweepEvery  = 5000
	edgeNeverRetry  = 60 * time.Second // Retry-After when the rate is zero
	edgeReasonLimit = "Too many requests"
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// EdgeLimiter is a keyed token-bucket limiter, safe for concurrent use.
type EdgeLimiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	ttl     time.Duration
	lookups uint64
}

// NewEdgeLimiter builds a limiter refilling rps tokens per second up to
// burst. A burst <= 0 becomes 1 and a nil keyFn keys by client IP.
func NewEdgeLimiter(rps float64, burst int, keyFn KeyFunc) *EdgeLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByClientIP()
	}
	return &EdgeLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		ttl:     edgeIdleTTL,
	}
}

// limiterFor returns the bucket for key. Every edgeSweepEvery lookups it
// first drops buckets idle for at least ttl.
func (l *EdgeLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lookups++
	if l.lookups >= edgeSweepEvery {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) >= l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lookups = 0
	}

	if b, ok := l.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.buckets[key] = &bucket{lim: lim, lastSeen: now}
	return lim
}

// wait reports how long the caller must wait for a token; zero admits and
// consumes one.
func (l *EdgeLimiter) wait(key string) time.Duration {
	now := l.now()
	r := l.limiterFor(key, now).ReserveN(now, 1)
	if !r.OK() {
		return edgeNeverRetry
	}
	d := r.DelayFrom(now)
	if d > 0 {
		r.CancelAt(now)
	}
	return d
}

// Handler enforces the limit. Rejections answer 429 with Retry-After set
// to when the next token is due and the same body the gateway uses for
// API key quotas, so clients handle both the same way.
func (l *EdgeLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		d := l.wait(l.keyFn(c))
		if d == 0 {
			c.Next()
			return
		}

		edgeRejections.WithLabelValues(c.FullPath()).Inc()
		secs := int(math.Ceil(d.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, AuthError{
			Error:     edgeReasonLimit,
			Message:   "Slow down and retry after the indicated delay",
			ResetTime: l.now().Add(d).UTC().Format(time.RFC3339),
		})
	}
}
