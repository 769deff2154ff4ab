// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for notifications
// and their per-recipient delivery status rows.
//
// Writes that must be atomic (notification + delivery rows) are composed by
// the caller inside a transaction; every function here accepts the handle it
// should run on.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-club-backend/internal/domain"
)

// deliveryBatchSize bounds the number of rows per INSERT statement so large
// audiences stay under SQLite's bound-parameter limit.
const deliveryBatchSize = 500

// InsertNotification inserts the notification row and populates its ID.
func InsertNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).Create(n).Error
}

// BulkInsertDeliveryStatus writes one delivered row per recipient and returns
// the number of rows actually written.
func BulkInsertDeliveryStatus(ctx context.Context, db *gorm.DB, notificationID uint, userIDs []uint, at time.Time) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	rows := make([]domain.DeliveryStatus, 0, len(userIDs))
	for _, uid := range userIDs {
		rows = append(rows, domain.DeliveryStatus{
			NotificationID: notificationID,
			UserID:         uid,
			Status:         domain.StatusDelivered,
			DeliveredAt:    at,
		})
	}
	res := db.WithContext(ctx).CreateInBatches(rows, deliveryBatchSize)
	return res.RowsAffected, res.Error
}

// UpdateDeliveryStatus flips the caller's own row from delivered to read and
// returns the number of rows changed (0 when already read or absent).
func UpdateDeliveryStatus(ctx context.Context, db *gorm.DB, userID, notificationID uint, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.DeliveryStatus{}).
		Where("user_id = ? AND notification_id = ? AND status = ?", userID, notificationID, domain.StatusDelivered).
		Updates(map[string]any{"status": domain.StatusRead, "read_at": at})
	return res.RowsAffected, res.Error
}

// MarkAllDelivered flips every unread row of userID to read.
func MarkAllDelivered(ctx context.Context, db *gorm.DB, userID uint, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.DeliveryStatus{}).
		Where("user_id = ? AND status = ?", userID, domain.StatusDelivered).
		Updates(map[string]any{"status": domain.StatusRead, "read_at": at})
	return res.RowsAffected, res.Error
}

// GetDeliveryStatus returns userID's row for notificationID, or ErrNotFound.
func GetDeliveryStatus(ctx context.Context, db *gorm.DB, userID, notificationID uint) (*domain.DeliveryStatus, error) {
	var ds domain.DeliveryStatus
	err := db.WithContext(ctx).
		Where("user_id = ? AND notification_id = ?", userID, notificationID).
		First(&ds).Error
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// CountDeliveryStatus returns the number of delivery rows for a notification.
func CountDeliveryStatus(ctx context.Context, db *gorm.DB, notificationID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.DeliveryStatus{}).
		Where("notification_id = ?", notificationID).
		Count(&n).Error
	return n, err
}

// GetNotification fetches a notification by ID.
func GetNotification(ctx context.Context, db *gorm.DB, id uint) (*domain.Notification, error) {
	var n domain.Notification
	if err := db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// userNotifications builds the join between a user's delivery rows and the
// notification content.
func userNotifications(ctx context.Context, db *gorm.DB, userID uint, unreadOnly bool) *gorm.DB {
	q := db.WithContext(ctx).
		Table("notification_delivery_status AS d").
		Joins("JOIN notifications ON notifications.id = d.notification_id").
		Where("d.user_id = ?", userID)
	if unreadOnly {
		q = q.Where("d.status = ?", domain.StatusDelivered)
	}
	return q
}

// ListUserNotifications returns a page of userID's notifications, most
// recent first. A limit <= 0 returns every row.
func ListUserNotifications(ctx context.Context, db *gorm.DB, userID uint, unreadOnly bool, offset, limit int) ([]domain.UserNotification, error) {
	var out []domain.UserNotification
	q := userNotifications(ctx, db, userID, unreadOnly).
		Select("notifications.*, d.status AS status, d.delivered_at AS delivered_at, d.read_at AS read_at").
		Order("notifications.created_at DESC, notifications.id DESC")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(&out).Error
	return out, err
}

// CountUserNotifications returns how many notifications userID has.
func CountUserNotifications(ctx context.Context, db *gorm.DB, userID uint, unreadOnly bool) (int64, error) {
	var total int64
	err := userNotifications(ctx, db, userID, unreadOnly).Count(&total).Error
	return total, err
}
