// Package services – NotificationService
//
// This file implements NotificationService, which owns the send path of a
// notification and the recipient-side inbox operations. Sending resolves the
// audience, persists the notification together with one delivery row per
// recipient in a single transaction, and only then pushes the notification
// to recipients with an open live connection. Persistence is the source of
// truth; the live push is best-effort and never fails a send.
//
// Observability: public methods are OpenTelemetry-instrumented and the send
// path records Prometheus counters for created notifications and written
// delivery rows.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-club-backend/internal/audience"
	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/repo"
)

// IdempotencyScopeNotifications scopes Idempotency-Key records for sends.
const IdempotencyScopeNotifications = "notifications:create"

var (
	notificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications persisted, by target type.",
		},
		[]string{"target_type"},
	)
	deliveriesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Per-recipient delivery rows written.",
	})
)

func init() {
	prometheus.MustRegister(notificationsCreated, deliveriesWritten)
}

// Publisher pushes a stored notification to live connections and returns
// how many of userIDs had at least one connection written to.
type Publisher interface {
	PublishNotification(ctx context.Context, userIDs []uint, n *domain.Notification) int
}

// Resolver expands an audience target into recipient user IDs.
type Resolver interface {
	Resolve(ctx context.Context, t audience.Target) ([]uint, error)
}

// NotificationService coordinates notification persistence, inbox queries,
// and live fan-out.
type NotificationService struct {
	DB        *gorm.DB
	Audience  Resolver
	Publisher Publisher

	// IdempotencyTTL bounds how long a send's Idempotency-Key is honored.
	IdempotencyTTL time.Duration
	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int

	now func() time.Time
}

// NewNotificationService returns a NotificationService with default limits.
// pub may be nil, in which case sends are persisted without live push.
func NewNotificationService(db *gorm.DB, res Resolver, pub Publisher) *NotificationService {
	return &NotificationService{
		DB:             db,
		Audience:       res,
		Publisher:      pub,
		IdempotencyTTL: 24 * time.Hour,
		TitleMaxLen:    255,
		now:            time.Now,
	}
}

// SendInput describes a notification to send.
type SendInput struct {
	Title    string
	Message  string
	Type     string
	Priority string
	Target   audience.Target
	SenderID *uint
	Metadata json.RawMessage

	// PrincipalID and IdempotencyKey, when both set, make the send
	// replay-safe for that principal.
	PrincipalID    string
	IdempotencyKey string
}

// SendResult reports the outcome of a send.
type SendResult struct {
	Notification   *domain.Notification
	RecipientCount int64
	PushedUsers    int
	Replayed       bool
}

// Send validates in, resolves its audience, persists the notification with
// one delivery row per recipient, and pushes it to connected recipients.
// A repeated IdempotencyKey returns the original notification without a
// second write or push.
func (s *NotificationService) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("target.type", string(in.Target.Type)),
			attribute.Int("target.ids", len(in.Target.IDs)),
		),
	)
	defer span.End()

	n, err := s.build(in)
	if err != nil {
		return nil, err
	}

	idem := in.PrincipalID != "" && in.IdempotencyKey != ""
	if idem {
		if res, ok := s.replay(ctx, in.PrincipalID, in.IdempotencyKey); ok {
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			return res, nil
		}
	}

	recipients, err := s.Audience.Resolve(ctx, in.Target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve audience")
		return nil, fmt.Errorf("resolve audience: %w", err)
	}

	var written int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var terr error
		written, terr = s.create(ctx, tx, n, recipients)
		if terr != nil {
			return terr
		}
		if idem {
			_, terr = repo.CreateIdempotency(ctx, tx, in.PrincipalID, IdempotencyScopeNotifications,
				in.IdempotencyKey, strconv.FormatUint(uint64(n.ID), 10), 201, s.IdempotencyTTL)
		}
		return terr
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent send with the same key won the race.
		if res, ok := s.replay(ctx, in.PrincipalID, in.IdempotencyKey); ok {
			return res, nil
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return nil, err
	}

	notificationsCreated.WithLabelValues(n.TargetType).Inc()
	deliveriesWritten.Add(float64(written))

	// The rows are committed; the push must not hinge on the sender
	// staying connected.
	pushed := 0
	if s.Publisher != nil && len(recipients) > 0 {
		pushed = s.Publisher.PublishNotification(context.WithoutCancel(ctx), recipients, n)
	}
	span.SetAttributes(
		attribute.Int64("recipients", written),
		attribute.Int("pushed", pushed),
	)
	return &SendResult{Notification: n, RecipientCount: written, PushedUsers: pushed}, nil
}

// Create persists n once and one delivered row per recipient atomically and
// returns the number of delivery rows written.
func (s *NotificationService) Create(ctx context.Context, n *domain.Notification, recipients []uint) (int64, error) {
	var written int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var terr error
		written, terr = s.create(ctx, tx, n, recipients)
		return terr
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (s *NotificationService) create(ctx context.Context, tx *gorm.DB, n *domain.Notification, recipients []uint) (int64, error) {
	now := s.now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.SentAt = now
	if err := repo.InsertNotification(ctx, tx, n); err != nil {
		return 0, err
	}
	written, err := repo.BulkInsertDeliveryStatus(ctx, tx, n.ID, recipients, now)
	if err != nil {
		return 0, err
	}
	if written != int64(len(recipients)) {
		return 0, fmt.Errorf("delivery rows: wrote %d of %d", written, len(recipients))
	}
	return written, nil
}

// replay returns the result of an earlier send under the same key.
func (s *NotificationService) replay(ctx context.Context, principal, key string) (*SendResult, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, principal, IdempotencyScopeNotifications, key, s.now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	id, err := strconv.ParseUint(rec.ResourceID, 10, 64)
	if err != nil {
		return nil, false
	}
	n, err := repo.GetNotification(ctx, s.DB, uint(id))
	if err != nil {
		return nil, false
	}
	count, err := repo.CountDeliveryStatus(ctx, s.DB, n.ID)
	if err != nil {
		return nil, false
	}
	return &SendResult{Notification: n, RecipientCount: count, Replayed: true}, true
}

// build validates and normalizes input into an unsaved notification.
func (s *NotificationService) build(in SendInput) (*domain.Notification, error) {
	title := normalizeTitle(norm.NFC.String(in.Title))
	message := strings.TrimSpace(norm.NFC.String(in.Message))
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidNotification)
	}
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidNotification)
	}
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		title = string([]rune(title)[:s.TitleMaxLen])
	}

	typ := strings.ToLower(strings.TrimSpace(in.Type))
	if typ == "" {
		typ = domain.NotificationInfo
	}
	if !domain.ValidNotificationType(typ) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, in.Type)
	}
	prio := strings.ToLower(strings.TrimSpace(in.Priority))
	if prio == "" {
		prio = domain.PriorityNormal
	}
	if !domain.ValidPriority(prio) {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidNotification, in.Priority)
	}

	var meta datatypes.JSON
	if len(in.Metadata) > 0 && string(in.Metadata) != "null" {
		if !json.Valid(in.Metadata) {
			return nil, fmt.Errorf("%w: metadata is not valid JSON", ErrInvalidNotification)
		}
		meta = datatypes.JSON(in.Metadata)
	}

	return &domain.Notification{
		Title:      title,
		Message:    message,
		Type:       typ,
		Priority:   prio,
		TargetType: string(in.Target.Type),
		TargetIDs:  in.Target.IDs,
		SenderID:   in.SenderID,
		Metadata:   meta,
	}, nil
}

// MarkRead moves the caller's own delivery row to read. Marking an already
// read notification is a no-op; a notification the caller never received
// yields ErrNotificationNotFound.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uint) error {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int64("notification.id", int64(notificationID)),
		),
	)
	defer span.End()

	changed, err := repo.UpdateDeliveryStatus(ctx, s.DB, userID, notificationID, s.now().UTC())
	if err != nil {
		return err
	}
	if changed > 0 {
		return nil
	}
	if _, err := repo.GetDeliveryStatus(ctx, s.DB, userID, notificationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	return nil
}

// MarkAllRead marks every unread notification of userID as read and
// returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return repo.MarkAllDelivered(ctx, s.DB, userID, s.now().UTC())
}

// ListPage returns a page of userID's notifications, newest first, and the
// total count. Invalid page/pageSize values fall back to 1 and 20.
func (s *NotificationService) ListPage(ctx context.Context, userID uint, unreadOnly bool, page, pageSize int) ([]domain.UserNotification, int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Bool("unread_only", unreadOnly),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountUserNotifications(ctx, s.DB, userID, unreadOnly)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.UserNotification{}, 0, nil
	}
	items, err := repo.ListUserNotifications(ctx, s.DB, userID, unreadOnly, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Backlog returns up to limit of userID's most recent unread notifications.
func (s *NotificationService) Backlog(ctx context.Context, userID uint, limit int) ([]domain.UserNotification, error) {
	if limit <= 0 {
		return []domain.UserNotification{}, nil
	}
	items, err := repo.ListUserNotifications(ctx, s.DB, userID, true, 0, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.UserNotification{}
	}
	return items, nil
}

// UnreadCount returns how many unread notifications userID has.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return repo.CountUserNotifications(ctx, s.DB, userID, true)
}
