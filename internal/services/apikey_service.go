// Package services – APIKeyService
//
// This file implements APIKeyService, which issues, lists, and revokes API
// keys for external clients. A raw key is returned exactly once at creation;
// only its SHA-256 digest and a short display prefix are stored.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-club-backend/internal/auth"
	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/repo"
)

// apiKeyPrefix marks raw keys so they are recognizable in logs and configs.
const apiKeyPrefix = "ck_"

// APIKeyService manages API keys.
type APIKeyService struct {
	DB *gorm.DB
	// DefaultRateLimit applies when a request does not specify one.
	DefaultRateLimit int

	now func() time.Time
}

// NewAPIKeyService constructs an APIKeyService.
func NewAPIKeyService(db *gorm.DB, defaultRateLimit int) *APIKeyService {
	if defaultRateLimit <= 0 {
		defaultRateLimit = 1000
	}
	return &APIKeyService{DB: db, DefaultRateLimit: defaultRateLimit, now: time.Now}
}

// CreateKeyInput describes a key to issue.
type CreateKeyInput struct {
	Name        string
	Permissions []string
	RateLimit   int
	ExpiresAt   *time.Time
	CreatedBy   *uint
}

// Create issues a key and returns the stored record with the raw secret.
func (s *APIKeyService) Create(ctx context.Context, in CreateKeyInput) (*domain.APIKey, string, error) {
	name := normalizeTitle(in.Name)
	if name == "" {
		return nil, "", fmt.Errorf("%w: name is required", ErrInvalidAPIKeyRequest)
	}
	perms := make([]string, 0, len(in.Permissions))
	seen := map[string]struct{}{}
	for _, p := range in.Permissions {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}
	if in.RateLimit < 0 {
		return nil, "", fmt.Errorf("%w: rateLimit must be >= 0", ErrInvalidAPIKeyRequest)
	}
	limit := in.RateLimit
	if limit == 0 {
		limit = s.DefaultRateLimit
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, "", fmt.Errorf("%w: expiresAt must be in the future", ErrInvalidAPIKeyRequest)
	}

	raw, err := newRawKey()
	if err != nil {
		return nil, "", err
	}
	k := &domain.APIKey{
		ID:          uuid.NewString(),
		Name:        name,
		KeyHash:     auth.HashAPIKey(raw),
		KeyPrefix:   raw[:len(apiKeyPrefix)+8],
		Permissions: perms,
		RateLimit:   limit,
		IsActive:    true,
		ExpiresAt:   in.ExpiresAt,
		CreatedBy:   in.CreatedBy,
	}
	if err := repo.CreateAPIKey(ctx, s.DB, k); err != nil {
		return nil, "", err
	}
	return k, raw, nil
}

// List returns every key, newest first.
func (s *APIKeyService) List(ctx context.Context) ([]domain.APIKey, error) {
	return repo.ListAPIKeys(ctx, s.DB)
}

// Revoke deactivates a key.
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	err := repo.DeactivateAPIKey(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAPIKeyNotFound
	}
	return err
}

func newRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}
