// Package domain defines the persistence models for club members, roles,
// divisions, API keys, and notifications. These types are mapped with GORM and
// form the core data layer shared by the repository, auth, and notification
// packages.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Role groups a set of permission strings. A user holds exactly one role; the
// role's permission list is re-read on every authenticated request so that
// changes take effect immediately.
type Role struct {
	ID          uint                        `json:"id"          gorm:"primaryKey"`
	Name        string                      `json:"name"        gorm:"type:varchar(64);not null;uniqueIndex"`
	Permissions datatypes.JSONSlice[string] `json:"permissions" gorm:"not null"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// TableName returns the database table name for Role.
func (Role) TableName() string { return "roles" }

// User is a club member who can sign in with a username and password.
//
// Fields:
//   - RoleID: the single role granting the user's permissions.
//   - IsActive: deactivated users fail authentication and are never targeted.
//   - PasswordHash: bcrypt hash; never serialized.
type User struct {
	ID           uint      `json:"id"           gorm:"primaryKey"`
	Username     string    `json:"username"     gorm:"type:varchar(64);not null;uniqueIndex"`
	Email        string    `json:"email"        gorm:"type:varchar(255);not null;default:''"`
	DisplayName  string    `json:"display_name" gorm:"type:varchar(255);not null;default:''"`
	PasswordHash string    `json:"-"            gorm:"type:varchar(255);not null"`
	RoleID       uint      `json:"role_id"      gorm:"not null;index"`
	IsActive     bool      `json:"is_active"    gorm:"not null;default:true;index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Role Role `json:"-" gorm:"foreignKey:RoleID;references:ID"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Permissions returns the permission list of the user's loaded role.
func (u *User) Permissions() []string {
	if u == nil || len(u.Role.Permissions) == 0 {
		return nil
	}
	out := make([]string, len(u.Role.Permissions))
	copy(out, u.Role.Permissions)
	return out
}

// Division is an organizational unit of the club.
type Division struct {
	ID        uint      `json:"id"   gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(128);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Division.
func (Division) TableName() string { return "divisions" }

// DivisionMember links a user to a division. A user may belong to several
// divisions; only active memberships count for audience resolution.
type DivisionMember struct {
	ID         uint      `json:"id"          gorm:"primaryKey"`
	DivisionID uint      `json:"division_id" gorm:"not null;uniqueIndex:ux_division_user,priority:1"`
	UserID     uint      `json:"user_id"     gorm:"not null;index;uniqueIndex:ux_division_user,priority:2"`
	IsActive   bool      `json:"is_active"   gorm:"not null;default:true"`
	CreatedAt  time.Time `json:"created_at"`

	Division Division `json:"-" gorm:"foreignKey:DivisionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User     User     `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DivisionMember.
func (DivisionMember) TableName() string { return "division_members" }

// APIKey is a long-lived credential issued to an external client. The raw
// secret is shown once at creation; only its SHA-256 hex digest is stored.
type APIKey struct {
	ID          string                      `json:"id"                     gorm:"type:char(36);primaryKey"`
	Name        string                      `json:"name"                   gorm:"type:varchar(128);not null"`
	KeyHash     string                      `json:"-"                      gorm:"type:char(64);not null;uniqueIndex"`
	KeyPrefix   string                      `json:"key_prefix"             gorm:"type:varchar(16);not null"`
	Permissions datatypes.JSONSlice[string] `json:"permissions"            gorm:"not null"`
	RateLimit   int                         `json:"rate_limit"             gorm:"not null;default:1000"`
	IsActive    bool                        `json:"is_active"              gorm:"not null;default:true"`
	ExpiresAt   *time.Time                  `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time                  `json:"last_used_at,omitempty"`
	CreatedBy   *uint                       `json:"created_by,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// TableName returns the database table name for APIKey.
func (APIKey) TableName() string { return "api_keys" }

// Expired reports whether the key has an expiry at or before now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}
