package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types.
const (
	NotificationInfo         = "info"
	NotificationSuccess      = "success"
	NotificationWarning      = "warning"
	NotificationError        = "error"
	NotificationAnnouncement = "announcement"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Delivery statuses. A row moves from delivered to read exactly once.
const (
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// ValidNotificationType reports whether t is a known notification type.
func ValidNotificationType(t string) bool {
	switch t {
	case NotificationInfo, NotificationSuccess, NotificationWarning, NotificationError, NotificationAnnouncement:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is the content of a message sent to an audience. It is stored
// once regardless of the number of recipients and never modified afterwards.
// The audience descriptor is kept denormalized as TargetType + TargetIDs.
type Notification struct {
	ID         uint                      `json:"id"                  gorm:"primaryKey"`
	Title      string                    `json:"title"               gorm:"type:varchar(255);not null"`
	Message    string                    `json:"message"             gorm:"type:text;not null"`
	Type       string                    `json:"type"                gorm:"type:varchar(16);not null;default:'info'"`
	Priority   string                    `json:"priority"            gorm:"type:varchar(16);not null;default:'normal'"`
	TargetType string                    `json:"target_type"         gorm:"type:varchar(16);not null"`
	TargetIDs  datatypes.JSONSlice[uint] `json:"target_ids"`
	SenderID   *uint                     `json:"sender_id,omitempty" gorm:"index"`
	Metadata   datatypes.JSON            `json:"metadata,omitempty"`
	CreatedAt  time.Time                 `json:"created_at"          gorm:"index"`
	SentAt     time.Time                 `json:"sent_at"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// DeliveryStatus records that one recipient was targeted by one notification.
// Exactly one row exists per (notification, recipient); no row means the user
// was never a target.
type DeliveryStatus struct {
	ID             uint       `json:"id"              gorm:"primaryKey"`
	NotificationID uint       `json:"notification_id" gorm:"not null;uniqueIndex:ux_delivery_notification_user,priority:1"`
	UserID         uint       `json:"user_id"         gorm:"not null;uniqueIndex:ux_delivery_notification_user,priority:2;index:idx_delivery_user_status,priority:1"`
	Status         string     `json:"status"          gorm:"type:varchar(16);not null;default:'delivered';index:idx_delivery_user_status,priority:2;check:status IN ('delivered','read')"`
	DeliveredAt    time.Time  `json:"delivered_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`

	Notification Notification `json:"-" gorm:"foreignKey:NotificationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DeliveryStatus.
func (DeliveryStatus) TableName() string { return "notification_delivery_status" }

// UserNotification is a notification as seen by one recipient, joined with
// that recipient's delivery state.
type UserNotification struct {
	Notification
	Status      string     `json:"status"`
	DeliveredAt time.Time  `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}
