// Notification HTTP handlers.
//
// This file exposes REST endpoints for notifications:
//   - POST   /notifications               (send to an audience, Idempotency-Key aware)
//   - GET    /notifications               (caller's inbox, paginated, ETag support)
//   - GET    /notifications/unread-count  (caller's unread total)
//   - PUT    /notifications/{id}/read     (mark one as read)
//   - PUT    /notifications/read-all      (mark all as read)
//
// Sending is permission-gated and accepts API keys and same-origin callers.
// Inbox endpoints require a verified user because they are scoped to one.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-club-backend/internal/audience"
	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/http/middleware"
	"github.com/tbourn/go-club-backend/internal/repo"
	"github.com/tbourn/go-club-backend/internal/services"
	"github.com/tbourn/go-club-backend/internal/utils"
)

//
// DTOs
//

// SendNotificationRequest is the JSON payload for sending a notification.
// Target IDs may be numbers or numeric strings; anything else is dropped.
type SendNotificationRequest struct {
	Title      string           `json:"title" example:"Training moved"`
	Message    string           `json:"message" example:"Thursday training starts at 19:00."`
	Type       string           `json:"type" enums:"info,success,warning,error,announcement" example:"info"`
	Priority   string           `json:"priority" enums:"low,normal,high,urgent" example:"normal"`
	TargetType string           `json:"targetType" enums:"all,user,role,division" example:"division"`
	TargetIDs  []audience.RawID `json:"targetIds" swaggertype:"array,integer" example:"3,5"`
	Metadata   json.RawMessage  `json:"metadata,omitempty" swaggertype:"object"`
}

// SendNotificationResponse reports the stored notification and its fan-out.
type SendNotificationResponse struct {
	Notification   *domain.Notification `json:"notification"`
	RecipientCount int64                `json:"recipientCount" example:"12"`
	PushedUsers    int                  `json:"pushedUsers" example:"4"`
}

// ListNotificationsResponse wraps a page of the caller's notifications.
type ListNotificationsResponse struct {
	Notifications []domain.UserNotification `json:"notifications"`
	Pagination    Pagination                `json:"pagination"`
}

// UnreadCountResponse carries the caller's unread total.
type UnreadCountResponse struct {
	Count int64 `json:"count" example:"3"`
}

// MarkAllReadResponse reports how many notifications changed to read.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated" example:"3"`
}

//
// Handlers
//

// SendNotification godoc
// @ID          sendNotification
// @Summary     Send a notification
// @Description Resolves the audience, stores the notification with one delivery row per recipient, and pushes it to connected recipients. Repeating an Idempotency-Key returns the original notification without a second delivery.
// @Tags        Notifications
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       Idempotency-Key  header  string  false  "Replay-safe key"  example(send-2025-01-01-001)
// @Param       body             body    handlers.SendNotificationRequest  true  "Notification"
//
// @Success     201  {object}  handlers.SendNotificationResponse
// @Header      201  {string}  Idempotency-Replayed  "true when served from an earlier send"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  middleware.AuthError    "Unauthenticated"
// @Failure     403  {object}  middleware.AuthError    "Insufficient permissions"
// @Failure     429  {object}  middleware.AuthError    "Rate limit exceeded"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications [post]
func (h *Handlers) SendNotification(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.TargetType) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "targetType required")
		return
	}

	in := services.SendInput{
		Title:       req.Title,
		Message:     req.Message,
		Type:        req.Type,
		Priority:    req.Priority,
		Target:      audience.NewTarget(req.TargetType, req.TargetIDs),
		SenderID:    actorID(c),
		Metadata:    req.Metadata,
		PrincipalID: middleware.PrincipalFrom(c),
	}
	if key, found := middleware.GetIdempotencyKey(c); found {
		in.IdempotencyKey = key
	}

	res, err := h.notifSvc.Send(c.Request.Context(), in)
	switch {
	case errors.Is(err, services.ErrInvalidNotification):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case err != nil:
		failInternal(c, ErrCodeSendFailed, err)
		return
	}

	if res.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		middleware.LoggerFrom(c).Info().
			Uint("notification_id", res.Notification.ID).
			Msg("idempotent send replayed")
	}
	ok(c, http.StatusCreated, SendNotificationResponse{
		Notification:   res.Notification,
		RecipientCount: res.RecipientCount,
		PushedUsers:    res.PushedUsers,
	})
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List my notifications (paginated)
// @Description Returns a page of the caller's notifications, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"notifications:1:10:3:1700000000:1:20:false\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
// @Param       unread         query   bool    false "Only unread notifications"
//
// @Success     200  {object} handlers.ListNotificationsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} middleware.AuthError    "Unauthenticated"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.notifSvc.(*services.NotificationService); ok {
		db = svc.DB
	}
	if db != nil {
		count, unread, maxTS, err := repo.NotificationStats(ctx, db, u.UserID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"notifications:%d:%d:%d:%d:%d:%d:%t"`,
				u.UserID, count, unread, ts, page, pageSize, unreadOnly)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.notifSvc.ListPage(ctx, u.UserID, unreadOnly, page, pageSize)
	if err != nil {
		failInternal(c, ErrCodeListFailed, err)
		return
	}
	if items == nil {
		items = []domain.UserNotification{}
	}

	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: items,
		Pagination:    newPagination(page, pageSize, total),
	})
}

// UnreadCount godoc
// @ID          unreadCount
// @Summary     Count my unread notifications
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object} handlers.UnreadCountResponse
// @Failure     401  {object} middleware.AuthError    "Unauthenticated"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/unread-count [get]
func (h *Handlers) UnreadCount(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	n, err := h.notifSvc.UnreadCount(c.Request.Context(), u.UserID)
	if err != nil {
		failInternal(c, ErrCodeInternal, err)
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{Count: n})
}

// MarkRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification as read
// @Description Marks one of the caller's notifications as read. Marking an already read notification succeeds.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Notification ID"  minimum(1) example(42)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} middleware.AuthError    "Unauthenticated"
// @Failure     404  {object} handlers.ErrorResponse "Notification not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/{id}/read [put]
func (h *Handlers) MarkRead(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	id, valid := utils.ParseUint(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "notification id must be a positive integer")
		return
	}

	err := h.notifSvc.MarkRead(c.Request.Context(), u.UserID, id)
	switch {
	case errors.Is(err, services.ErrNotificationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
		return
	case err != nil:
		failInternal(c, ErrCodeUpdateFailed, err)
		return
	}
	noContent(c)
}

// MarkAllRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark all my notifications as read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object} handlers.MarkAllReadResponse
// @Failure     401  {object} middleware.AuthError    "Unauthenticated"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/read-all [put]
func (h *Handlers) MarkAllRead(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	n, err := h.notifSvc.MarkAllRead(c.Request.Context(), u.UserID)
	if err != nil {
		failInternal(c, ErrCodeUpdateFailed, err)
		return
	}
	ok(c, http.StatusOK, MarkAllReadResponse{Updated: n})
}
