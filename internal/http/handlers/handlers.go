// Service contracts the handlers depend on, the Handlers wiring type, and
// pagination and caller helpers shared by all endpoints.

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-club-backend/internal/auth"
	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/http/middleware"
	"github.com/tbourn/go-club-backend/internal/services"
	"github.com/tbourn/go-club-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// NotificationService defines sending and inbox operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type NotificationService interface {
	// Send resolves the audience, persists, and pushes a notification.
	Send(ctx context.Context, in services.SendInput) (*services.SendResult, error)
	// ListPage returns a page of a user's notifications and the total count.
	ListPage(ctx context.Context, userID uint, unreadOnly bool, page, pageSize int) ([]domain.UserNotification, int64, error)
	// UnreadCount returns how many notifications the user has not read.
	UnreadCount(ctx context.Context, userID uint) (int64, error)
	// MarkRead marks one of the user's notifications as read.
	MarkRead(ctx context.Context, userID, notificationID uint) error
	// MarkAllRead marks all of the user's notifications as read.
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
}

// AuthService exchanges credentials for a session token.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
}

// APIKeyService manages API keys for external clients.
type APIKeyService interface {
	Create(ctx context.Context, in services.CreateKeyInput) (*domain.APIKey, string, error)
	List(ctx context.Context) ([]domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for sign-in, notifications, and API keys.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	notifSvc NotificationService
	authSvc  AuthService
	keySvc   APIKeyService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(notifSvc NotificationService, authSvc AuthService, keySvc APIKeyService) *Handlers {
	return &Handlers{notifSvc: notifSvc, authSvc: authSvc, keySvc: keySvc}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiBounded(c.Query("page"), defaultPage, 1, 0)
	pageSize = utils.AtoiBounded(c.Query("page_size"), defaultPageSize, 1, maxPageSize)
	return
}

// actorID returns the acting user's id, if one is known: the verified user
// on strict routes, or a user attached alongside a same-origin identity.
func actorID(c *gin.Context) *uint {
	if u, ok := middleware.UserFrom(c); ok {
		id := u.UserID
		return &id
	}
	if u, ok := middleware.ActorFrom(c); ok {
		id := u.UserID
		return &id
	}
	return nil
}

// currentUser returns the verified user. Strict routes guarantee presence;
// the boolean guards against misconfigured routing.
func currentUser(c *gin.Context) (*auth.UserIdentity, bool) {
	u, ok := middleware.UserFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return nil, false
	}
	return u, true
}
