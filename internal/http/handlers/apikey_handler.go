// API key HTTP handlers.
//
// This file exposes management endpoints for external client keys:
//   - POST   /api-keys        (issue; the raw secret is returned once)
//   - GET    /api-keys        (list, secrets never included)
//   - DELETE /api-keys/{id}   (revoke)
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/http/middleware"
	"github.com/tbourn/go-club-backend/internal/services"
)

//
// DTOs
//

// CreateAPIKeyRequest is the JSON payload for issuing a key.
type CreateAPIKeyRequest struct {
	Name        string     `json:"name" binding:"required" example:"scoreboard-sync"`
	Permissions []string   `json:"permissions" example:"notifications:send"`
	RateLimit   int        `json:"rateLimit" minimum:"0" example:"1000"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// CreateAPIKeyResponse carries the stored key and its raw secret. The secret
// cannot be retrieved again.
type CreateAPIKeyResponse struct {
	APIKey *domain.APIKey `json:"apiKey"`
	Key    string         `json:"key" example:"ck_3f9a..."`
}

// ListAPIKeysResponse wraps all keys.
type ListAPIKeysResponse struct {
	APIKeys []domain.APIKey `json:"apiKeys"`
}

//
// Handlers
//

// CreateAPIKey godoc
// @ID          createAPIKey
// @Summary     Issue an API key
// @Description Creates a key for an external client. The raw key appears only in this response; only its hash is stored. Every requested permission must be held by the caller (system:admin holds all).
// @Tags        APIKeys
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.CreateAPIKeyRequest  true  "Key definition"
//
// @Success     201  {object}  handlers.CreateAPIKeyResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  middleware.AuthError    "Unauthenticated"
// @Failure     403  {object}  middleware.AuthError    "Insufficient permissions, or a requested permission the caller lacks"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api-keys [post]
func (h *Handlers) CreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	// A key never carries more than its creator holds.
	for _, p := range req.Permissions {
		if p = strings.TrimSpace(p); p != "" && !middleware.Demand(c, p) {
			return
		}
	}

	k, raw, err := h.keySvc.Create(c.Request.Context(), services.CreateKeyInput{
		Name:        req.Name,
		Permissions: req.Permissions,
		RateLimit:   req.RateLimit,
		ExpiresAt:   req.ExpiresAt,
		CreatedBy:   actorID(c),
	})
	switch {
	case errors.Is(err, services.ErrInvalidAPIKeyRequest):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case err != nil:
		failInternal(c, ErrCodeCreateFailed, err)
		return
	}
	ok(c, http.StatusCreated, CreateAPIKeyResponse{APIKey: k, Key: raw})
}

// ListAPIKeys godoc
// @ID          listAPIKeys
// @Summary     List API keys
// @Tags        APIKeys
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  handlers.ListAPIKeysResponse
// @Failure     401  {object}  middleware.AuthError    "Unauthenticated"
// @Failure     403  {object}  middleware.AuthError    "Insufficient permissions"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api-keys [get]
func (h *Handlers) ListAPIKeys(c *gin.Context) {
	keys, err := h.keySvc.List(c.Request.Context())
	if err != nil {
		failInternal(c, ErrCodeListFailed, err)
		return
	}
	if keys == nil {
		keys = []domain.APIKey{}
	}
	ok(c, http.StatusOK, ListAPIKeysResponse{APIKeys: keys})
}

// RevokeAPIKey godoc
// @ID          revokeAPIKey
// @Summary     Revoke an API key
// @Description Deactivates a key; subsequent requests with it fail with 401.
// @Tags        APIKeys
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "API key ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "API key not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api-keys/{id} [delete]
func (h *Handlers) RevokeAPIKey(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "api key id must be a UUID")
		return
	}

	err := h.keySvc.Revoke(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrAPIKeyNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "api key not found")
		return
	case err != nil:
		failInternal(c, ErrCodeUpdateFailed, err)
		return
	}
	noContent(c)
}
