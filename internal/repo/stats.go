// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-club-backend/internal/domain"
)

// NotificationStats returns aggregate metadata for a user's inbox: the total
// number of delivery rows, how many are still unread, and the most recent
// DeliveredAt among them.
//
// Return values:
//   - count:          total delivery rows for userID
//   - unread:         rows with status=delivered
//   - maxDeliveredAt: pointer to the greatest DeliveredAt, or nil if no rows
//   - err:            database error, if any
func NotificationStats(ctx context.Context, db *gorm.DB, userID uint) (count, unread int64, maxDeliveredAt *time.Time, err error) {
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.DeliveryStatus{}).Where("user_id = ?", userID)
	}

	if err = base().Count(&count).Error; err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		return 0, 0, nil, nil
	}
	if err = base().Where("status = ?", domain.StatusDelivered).Count(&unread).Error; err != nil {
		return 0, 0, nil, err
	}

	// Get latest delivered_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		DeliveredAt time.Time
	}
	if err = base().Select("delivered_at").Order("delivered_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, unread, &row.DeliveredAt, nil
}
