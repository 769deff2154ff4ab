// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication, idempotency, and edge
// rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Every API route passes exactly one authentication gate
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-club-backend/docs"
	"github.com/tbourn/go-club-backend/internal/audience"
	"github.com/tbourn/go-club-backend/internal/auth"
	"github.com/tbourn/go-club-backend/internal/config"
	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/http/handlers"
	"github.com/tbourn/go-club-backend/internal/http/middleware"
	"github.com/tbourn/go-club-backend/internal/ratelimit"
	"github.com/tbourn/go-club-backend/internal/realtime"
	"github.com/tbourn/go-club-backend/internal/repo"
	"github.com/tbourn/go-club-backend/internal/services"
)

// storeShim adapts the repository free functions to the auth.Store and
// audience.Directory interfaces. This keeps the auth and audience packages
// decoupled from the concrete repo package while reusing existing functions.
type storeShim struct{ db *gorm.DB }

// FindUserByID proxies repo.FindUserByID.
func (s storeShim) FindUserByID(ctx context.Context, id uint) (*domain.User, error) {
	return repo.FindUserByID(ctx, s.db, id)
}

// FindAPIKeyByHash proxies repo.FindAPIKeyByHash.
func (s storeShim) FindAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	return repo.FindAPIKeyByHash(ctx, s.db, hash)
}

// TouchAPIKey proxies repo.TouchAPIKey.
func (s storeShim) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	return repo.TouchAPIKey(ctx, s.db, id, at)
}

// ActiveUserIDs proxies repo.FindActiveUserIDs.
func (s storeShim) ActiveUserIDs(ctx context.Context) ([]uint, error) {
	return repo.FindActiveUserIDs(ctx, s.db)
}

// UserIDsByRoles proxies repo.FindUserIDsByRoleIDs.
func (s storeShim) UserIDsByRoles(ctx context.Context, roleIDs []uint) ([]uint, error) {
	return repo.FindUserIDsByRoleIDs(ctx, s.db, roleIDs)
}

// UserIDsByDivisions proxies repo.FindUserIDsByDivisionIDs.
func (s storeShim) UserIDsByDivisions(ctx context.Context, divisionIDs []uint) ([]uint, error) {
	return repo.FindUserIDsByDivisionIDs(ctx, s.db, divisionIDs)
}

// Runtime exposes the long-lived components the caller must drain on
// shutdown.
type Runtime struct {
	// Registry holds every open live connection.
	Registry *realtime.Registry
	// Verifier owns background lastUsed updates; Flush waits for them.
	Verifier *auth.Verifier
}

// Shutdown closes live connections and waits for pending credential
// bookkeeping.
func (rt *Runtime) Shutdown(reason string) {
	rt.Registry.CloseAll(reason)
	rt.Verifier.Flush()
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), compression, CORS
// and security headers, health, docs and metrics endpoints, the live
// connection endpoint, and then mounts the versioned API under
// cfg.APIBasePath.
//
// limiter enforces per-API-key quotas; nil selects an in-process store with
// the configured window.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with credential scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Compression (not for /ws or /metrics)
//  8. CORS and Security headers
//
// Per-route gates follow: the edge limiter on public entry points,
// Authenticate (API key or same-origin) on shared routes, RequireUser on
// user-scoped routes, then RequirePermission and idempotency.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, limiter *ratelimit.Limiter, cfg config.Config) *Runtime {
	r.HandleMethodNotAllowed = true

	apiKeyHeader := cfg.Auth.APIKeyHeader
	if apiKeyHeader == "" {
		apiKeyHeader = auth.DefaultAPIKeyHeader
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:     []string{auth.DefaultAPIKeyHeader, apiKeyHeader},
		MaskQueryParams: []string{"token"},
		QuietPaths:      []string{"/health", "/metrics"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression; the live endpoint hijacks the connection
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))

	// 8) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", apiKeyHeader, middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{
		"X-Request-ID", "Content-Length", "ETag", "Retry-After",
		middleware.HeaderRateLimitLimit, middleware.HeaderRateLimitRemaining, middleware.HeaderRateLimitReset,
		middleware.HeaderIdempotencyReplayed,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:        cfg.Security.EnableHSTS,
		HSTSMaxAge:        cfg.Security.HSTSMaxAge,
		EnablePolicy:      true,
		CredentialHeaders: []string{"Authorization", apiKeyHeader},
		ExposeHeaders:     exposeHeaders,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: auth ← repo/db
	store := storeShim{db: db}
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL, cfg.Auth.JWTIssuer)
	verifier := auth.NewVerifier(store, issuer)
	if cfg.Auth.StoreTimeout > 0 {
		verifier.Timeout = cfg.Auth.StoreTimeout
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.NewMemoryStore(), cfg.Auth.RateWindow, cfg.Auth.DefaultRateLimit)
	}
	var origins auth.OriginPolicy = auth.HostEcho{TrustForwardedProto: cfg.Auth.TrustProxyProto}
	if len(cfg.Auth.SameOriginAllow) > 0 {
		origins = auth.NewAllowList(cfg.Auth.SameOriginAllow)
	}
	classifier := &auth.Classifier{
		Verifier:     verifier,
		Limiter:      limiter,
		Origins:      origins,
		APIKeyHeader: apiKeyHeader,
	}

	// Services and live fan-out
	registry := realtime.NewRegistry()
	notifSvc := services.NewNotificationService(db, audience.NewResolver(store), registry)
	if cfg.IdempotencyTTL > 0 {
		notifSvc.IdempotencyTTL = cfg.IdempotencyTTL
	}
	h := handlers.New(
		notifSvc,
		services.NewAuthService(db, issuer),
		services.NewAPIKeyService(db, cfg.Auth.DefaultRateLimit),
	)
	live := &realtime.Server{
		Registry:         registry,
		Inbox:            notifSvc,
		Verifier:         verifier,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		WriteTimeout:     cfg.Realtime.WriteTimeout,
		BacklogLimit:     cfg.Realtime.BacklogLimit,
		OriginPatterns:   cfg.Realtime.AllowedOrigins,
	}

	// Per-IP token bucket on unauthenticated entry points
	edge := middleware.NewEdgeLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIPAndRoute())

	// Live connections (token in query string, verified before upgrade)
	r.GET("/ws", edge.Handler(), gin.WrapH(live))

	// Replay itself happens in NotificationService.Send, in the same
	// transaction that records the key.
	idempotent := middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200})

	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	{
		// Sign-in
		api.POST("/auth/login", edge.Handler(), h.Login)

		// API key or same-origin callers
		shared := api.Group("", middleware.Authenticate(classifier), middleware.AttachActor(verifier))
		shared.POST("/notifications",
			middleware.RequirePermission(auth.PermNotificationsSend),
			idempotent,
			h.SendNotification)

		// Verified users only
		mine := api.Group("", middleware.RequireUser(verifier))
		mine.GET("/auth/me", h.Me)
		mine.GET("/notifications", h.ListNotifications)
		mine.GET("/notifications/unread-count", h.UnreadCount)
		mine.PUT("/notifications/read-all", h.MarkAllRead)
		mine.PUT("/notifications/:id/read", h.MarkRead)

		// Key management
		keys := mine.Group("/api-keys", middleware.RequirePermission(auth.PermAPIKeysManage))
		keys.POST("", h.CreateAPIKey)
		keys.GET("", h.ListAPIKeys)
		keys.DELETE("/:id", h.RevokeAPIKey)
	}

	return &Runtime{Registry: registry, Verifier: verifier}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
