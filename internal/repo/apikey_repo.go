// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for API keys.
//
// Keys are looked up by the SHA-256 hex digest of the presented secret; the
// raw secret is never persisted. Validity (active flag, expiry) is decided by
// the caller so that it can report a precise reason.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-club-backend/internal/domain"
)

// CreateAPIKey inserts a new API key row.
func CreateAPIKey(ctx context.Context, db *gorm.DB, k *domain.APIKey) error {
	return db.WithContext(ctx).Create(k).Error
}

// FindAPIKeyByHash returns the key whose digest equals hash, or ErrNotFound.
func FindAPIKeyByHash(ctx context.Context, db *gorm.DB, hash string) (*domain.APIKey, error) {
	var k domain.APIKey
	if err := db.WithContext(ctx).First(&k, "key_hash = ?", hash).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

// TouchAPIKey records the last time a key was successfully used.
func TouchAPIKey(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.APIKey{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at).Error
}

// ListAPIKeys returns all keys ordered by creation time, newest first.
func ListAPIKeys(ctx context.Context, db *gorm.DB) ([]domain.APIKey, error) {
	var out []domain.APIKey
	err := db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// DeactivateAPIKey marks a key inactive. It returns ErrNotFound when no key
// has the given id.
func DeactivateAPIKey(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Model(&domain.APIKey{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
