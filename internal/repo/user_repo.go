// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for users, roles,
// and division memberships, including the audience queries used to expand a
// notification target into concrete recipients.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// Error semantics:
//   - When a row is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-club-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// FindUserByID loads a user together with its role. Inactive users are
// returned as well; callers decide how to treat them.
func FindUserByID(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Preload("Role").First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByUsername loads a user (with role) by its unique username.
func FindUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Preload("Role").First(&u, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindActiveUserIDs returns the IDs of every active user, ascending.
func FindActiveUserIDs(ctx context.Context, db *gorm.DB) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("is_active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// FindUserIDsByRoleIDs returns the IDs of active users holding any of roleIDs.
func FindUserIDsByRoleIDs(ctx context.Context, db *gorm.DB, roleIDs []uint) ([]uint, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("is_active = ? AND role_id IN ?", true, roleIDs).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// FindUserIDsByDivisionIDs returns the IDs of active users with an active
// membership in any of divisionIDs. Users without a membership row are
// excluded; users in several of the divisions appear once.
func FindUserIDsByDivisionIDs(ctx context.Context, db *gorm.DB, divisionIDs []uint) ([]uint, error) {
	if len(divisionIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := db.WithContext(ctx).
		Table("users").
		Joins("JOIN division_members dm ON dm.user_id = users.id").
		Where("users.is_active = ? AND dm.is_active = ? AND dm.division_id IN ?", true, true, divisionIDs).
		Distinct("users.id").
		Order("users.id ASC").
		Pluck("users.id", &ids).Error
	return ids, err
}

// CreateRole inserts a role with the given permission list.
func CreateRole(ctx context.Context, db *gorm.DB, name string, permissions []string) (*domain.Role, error) {
	r := &domain.Role{Name: name, Permissions: permissions}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// FindRoleByName loads a role by its unique name.
func FindRoleByName(ctx context.Context, db *gorm.DB, name string) (*domain.Role, error) {
	var r domain.Role
	if err := db.WithContext(ctx).First(&r, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateUser inserts a user row. The caller supplies the password hash.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return db.WithContext(ctx).Create(u).Error
}

// SetUserActive toggles a user's active flag.
func SetUserActive(ctx context.Context, db *gorm.DB, id uint, active bool) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddDivisionMember records an active membership of userID in divisionID.
func AddDivisionMember(ctx context.Context, db *gorm.DB, divisionID, userID uint) error {
	return db.WithContext(ctx).Create(&domain.DivisionMember{
		DivisionID: divisionID,
		UserID:     userID,
		IsActive:   true,
	}).Error
}
