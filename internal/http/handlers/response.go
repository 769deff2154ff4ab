// Package handlers implements the REST endpoints of the notification API:
// token login, the caller's inbox, audience sends, and API key management.
//
// Every failure uses the ErrorResponse envelope with a stable code:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "notification not found"
//	}
//
// Gateway rejections (401/403/429 raised before a handler runs) use the
// bodies written by the auth middleware instead.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-club-backend/internal/http/middleware"
)

// internalMessage replaces store and driver errors in 5xx bodies.
const internalMessage = "internal server error"

// bearerChallenge is advertised on 401s raised by handlers.
const bearerChallenge = `Bearer realm="club"`

// ErrorResponse is the standard error envelope returned by handlers.
type ErrorResponse struct {
	// Echo of X-Request-ID for correlating logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Human-readable message, safe to show to users
	Message string `json:"message" example:"notification not found"`
}

// fail aborts the request with a structured error. 5xx responses are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("principal", middleware.PrincipalFrom(c)).
			Str("message", msg).
			Msg("api error")
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", bearerChallenge)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get(middleware.HeaderRequestID),
		Code:      code,
		Message:   msg,
	})
}

// failInternal logs err with request context and answers 500 without
// exposing it.
func failInternal(c *gin.Context, code string, err error) {
	middleware.LoggerFrom(c).Error().
		Err(err).
		Str("code", code).
		Str("principal", middleware.PrincipalFrom(c)).
		Msg("api error")
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		RequestID: c.Writer.Header().Get(middleware.HeaderRequestID),
		Code:      code,
		Message:   internalMessage,
	})
}

// Fail is the exported variant of fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
