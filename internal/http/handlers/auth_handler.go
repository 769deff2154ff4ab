// Auth HTTP handlers.
//
// This file exposes sign-in endpoints:
//   - POST   /auth/login   (exchange username/password for a bearer token)
//   - GET    /auth/me      (describe the verified caller)
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/services"
)

//
// DTOs
//

// LoginRequest is the JSON payload for signing in.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"admin"`
	Password string `json:"password" binding:"required" example:"s3cret-pass"`
}

// LoginResponse carries the issued token and the signed-in user.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

// MeResponse describes the verified caller. Permissions are read from the
// store on every request, not from the token.
type MeResponse struct {
	ID          uint     `json:"id" example:"1"`
	Username    string   `json:"username" example:"admin"`
	Email       string   `json:"email" example:"admin@club.example"`
	DisplayName string   `json:"displayName" example:"Club Admin"`
	RoleID      uint     `json:"roleId" example:"1"`
	Permissions []string `json:"permissions"`
}

//
// Handlers
//

// Login godoc
// @ID          login
// @Summary     Sign in
// @Description Verifies a username and password and returns a bearer token for live connections and user-scoped endpoints.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
//
// @Success     200  {object}  handlers.LoginResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password required")
		return
	}

	res, err := h.authSvc.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid username or password")
		return
	case err != nil:
		failInternal(c, ErrCodeInternal, err)
		return
	}

	ok(c, http.StatusOK, LoginResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, User: res.User})
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Description Returns the verified caller with permissions re-read from the store.
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  handlers.MeResponse
// @Failure     401  {object}  middleware.AuthError  "Unauthenticated"
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	perms := u.Permissions
	if perms == nil {
		perms = []string{}
	}
	ok(c, http.StatusOK, MeResponse{
		ID:          u.UserID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		RoleID:      u.RoleID,
		Permissions: perms,
	})
}
