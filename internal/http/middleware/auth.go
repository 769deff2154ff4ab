// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file is the authentication gateway. Authenticate classifies each
// request into exactly one trust mode (API key, same-origin, or rejection),
// applies the per-key quota for API keys, and stores the resolved identity in
// the Gin context. RequireUser is the strict variant for routes that need a
// concrete user and accepts only a verified bearer token. RequirePermission
// gates a route on a permission string.
//
// Rejections use the gateway's own bodies rather than the generic error
// envelope so clients can branch on the reason:
//
//	401 {"error": "Invalid API key", "message": "..."}
//	403 {"error": "Insufficient permissions", "message": "...", "requiredPermission": "...", "grantedPermissions": [...]}
//	429 {"error": "Rate limit exceeded", "message": "...", "resetTime": "2025-01-01T10:00:00Z"}
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-club-backend/internal/auth"
	"github.com/tbourn/go-club-backend/internal/ratelimit"
)

const (
	ctxKeyIdentity = "auth.identity"
	ctxKeyActor    = "auth.actor"
)

// Rate-limit response headers set for API-key requests.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

var authDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_decisions_total",
		Help: "Authentication and authorization decisions by trust mode and outcome.",
	},
	[]string{"mode", "outcome"},
)

func init() {
	prometheus.MustRegister(authDecisions)
}

// RequestClassifier resolves a request's identity. *auth.Classifier
// satisfies it.
type RequestClassifier interface {
	Classify(r *http.Request) (auth.Result, error)
}

// BearerVerifier verifies a user's bearer token. *auth.Verifier satisfies it.
type BearerVerifier interface {
	VerifyBearer(ctx context.Context, token string) (*auth.UserIdentity, error)
}

// AuthError is the body of gateway 401/403/429 responses.
type AuthError struct {
	Error              string   `json:"error" example:"Insufficient permissions"`
	Message            string   `json:"message" example:"This operation requires the notifications:send permission"`
	RequiredPermission string   `json:"requiredPermission,omitempty" example:"notifications:send"`
	GrantedPermissions []string `json:"grantedPermissions,omitempty"`
	ResetTime          string   `json:"resetTime,omitempty" example:"2025-01-01T10:00:00Z"`
}

// IdentityFrom returns the identity stored by Authenticate or RequireUser.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(auth.Identity)
	return id, ok && id != nil
}

// UserFrom returns the verified user identity, if the request carries one.
func UserFrom(c *gin.Context) (*auth.UserIdentity, bool) {
	id, ok := IdentityFrom(c)
	if !ok {
		return nil, false
	}
	u, ok := id.(*auth.UserIdentity)
	return u, ok && u != nil
}

// PrincipalFrom returns the stable subject of the caller ("user:7",
// "apikey:<id>", "same-origin") or "" when unauthenticated.
func PrincipalFrom(c *gin.Context) string {
	if id, ok := IdentityFrom(c); ok {
		return id.Subject()
	}
	return ""
}

// ActorFrom returns the user attached by AttachActor, if any.
func ActorFrom(c *gin.Context) (*auth.UserIdentity, bool) {
	v, ok := c.Get(ctxKeyActor)
	if !ok {
		return nil, false
	}
	u, ok := v.(*auth.UserIdentity)
	return u, ok && u != nil
}

func setIdentity(c *gin.Context, id auth.Identity) {
	c.Set(ctxKeyIdentity, id)
	c.Set("principal", id.Subject())
}

// Authenticate classifies the request and stores the identity. API-key
// requests carry X-RateLimit-* headers whether admitted or rejected.
func Authenticate(cl RequestClassifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := cl.Classify(c.Request)
		if res.Quota != nil {
			setQuotaHeaders(c, *res.Quota)
		}

		var (
			credErr *auth.CredentialError
			limErr  *ratelimit.ExceededError
		)
		switch {
		case err == nil:
			authDecisions.WithLabelValues(string(res.Identity.Mode()), "admitted").Inc()
			setIdentity(c, res.Identity)
			c.Next()
		case errors.As(err, &limErr):
			authDecisions.WithLabelValues(string(auth.ModeAPIKey), "rate_limited").Inc()
			abortRateLimited(c, limErr)
		case errors.As(err, &credErr):
			authDecisions.WithLabelValues(modeOf(res.Identity, c, cl), "unauthenticated").Inc()
			abortUnauthenticated(c, credErr.Reason)
		default:
			authDecisions.WithLabelValues("unknown", "error").Inc()
			LoggerFrom(c).Error().Err(err).Msg("authentication failed")
			abortAuthUnavailable(c)
		}
	}
}

// modeOf labels a failed classification. A failed API key carries no
// identity, so the mode is inferred from the header.
func modeOf(id auth.Identity, c *gin.Context, cl RequestClassifier) string {
	if id != nil {
		return string(id.Mode())
	}
	header := auth.DefaultAPIKeyHeader
	if cc, ok := cl.(*auth.Classifier); ok && cc.APIKeyHeader != "" {
		header = cc.APIKeyHeader
	}
	if _, present := c.Request.Header[http.CanonicalHeaderKey(header)]; present {
		return string(auth.ModeAPIKey)
	}
	return "none"
}

// RequireUser admits only requests with a valid bearer token for an active
// user. Same-origin requests are not enough.
func RequireUser(v BearerVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.Request)
		if token == "" {
			authDecisions.WithLabelValues(string(auth.ModeUser), "unauthenticated").Inc()
			abortUnauthenticated(c, auth.ReasonAuthRequired)
			return
		}
		u, err := v.VerifyBearer(c.Request.Context(), token)
		if err != nil {
			var credErr *auth.CredentialError
			if errors.As(err, &credErr) {
				authDecisions.WithLabelValues(string(auth.ModeUser), "unauthenticated").Inc()
				abortUnauthenticated(c, credErr.Reason)
				return
			}
			authDecisions.WithLabelValues(string(auth.ModeUser), "error").Inc()
			LoggerFrom(c).Error().Err(err).Msg("token verification failed")
			abortAuthUnavailable(c)
			return
		}
		authDecisions.WithLabelValues(string(auth.ModeUser), "admitted").Inc()
		setIdentity(c, u)
		c.Next()
	}
}

// AttachActor records who is acting on a same-origin request that also
// carries a bearer token. It never rejects and never changes the identity
// used by the permission gate; an unverifiable token is ignored.
func AttachActor(v BearerVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok || id.Mode() != auth.ModeSameOrigin {
			c.Next()
			return
		}
		if token := auth.BearerToken(c.Request); token != "" {
			if u, err := v.VerifyBearer(c.Request.Context(), token); err == nil {
				c.Set(ctxKeyActor, u)
			} else {
				LoggerFrom(c).Debug().Err(err).Msg("actor token ignored")
			}
		}
		c.Next()
	}
}

// RequirePermission admits identities allowed to use perm. It must run after
// Authenticate or RequireUser.
func RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Demand(c, perm) {
			c.Next()
		}
	}
}

// Demand reports whether the caller may use perm. On false the request has
// already been aborted with 401 or 403.
func Demand(c *gin.Context, perm string) bool {
	id, ok := IdentityFrom(c)
	if !ok {
		abortUnauthenticated(c, auth.ReasonAuthRequired)
		return false
	}
	err := auth.Check(id, perm)
	if err == nil {
		return true
	}
	var pe *auth.PermissionError
	errors.As(err, &pe)
	authDecisions.WithLabelValues(string(id.Mode()), "forbidden").Inc()
	c.AbortWithStatusJSON(http.StatusForbidden, AuthError{
		Error:              "Insufficient permissions",
		Message:            fmt.Sprintf("This operation requires the %s permission", perm),
		RequiredPermission: pe.Required,
		GrantedPermissions: pe.Granted,
	})
	return false
}

func setQuotaHeaders(c *gin.Context, d ratelimit.Decision) {
	h := c.Writer.Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func abortUnauthenticated(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, AuthError{
		Error:   reason,
		Message: unauthenticatedMessage(reason),
	})
}

func unauthenticatedMessage(reason string) string {
	switch reason {
	case auth.ReasonInvalidAPIKey:
		return "The provided API key is not valid or has been revoked"
	case auth.ReasonAPIKeyExpired:
		return "The provided API key has expired"
	case auth.ReasonInvalidToken:
		return "The bearer token is invalid or expired"
	case auth.ReasonInactiveUser:
		return "The account behind this token is not active"
	}
	return "Provide an API key or a valid bearer token"
}

func abortRateLimited(c *gin.Context, e *ratelimit.ExceededError) {
	retry := int(time.Until(e.ResetAt).Seconds()) + 1
	if retry < 1 {
		retry = 1
	}
	c.Header("Retry-After", strconv.Itoa(retry))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, AuthError{
		Error:     "Rate limit exceeded",
		Message:   fmt.Sprintf("API key limit of %d requests per window reached", e.Limit),
		ResetTime: e.ResetAt.UTC().Format(time.RFC3339),
	})
}

func abortAuthUnavailable(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
		"request_id": c.Writer.Header().Get(HeaderRequestID),
		"code":       "auth_unavailable",
		"message":    "authentication backend unavailable",
	})
}
