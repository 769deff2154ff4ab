package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-club-backend/internal/domain"
)

// Store is the durable lookup surface the verifier depends on. Missing rows
// are reported as gorm.ErrRecordNotFound.
type Store interface {
	FindUserByID(ctx context.Context, id uint) (*domain.User, error)
	FindAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// HashAPIKey returns the hex SHA-256 digest under which a raw key is stored.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verifier checks bearer tokens and API keys against the store.
type Verifier struct {
	store  Store
	tokens *Issuer

	// Timeout bounds each store lookup made while verifying.
	Timeout time.Duration
	// TouchTimeout bounds the background lastUsed update.
	TouchTimeout time.Duration

	now     func() time.Time
	pending sync.WaitGroup
}

// NewVerifier returns a Verifier with a 5s lookup timeout.
func NewVerifier(store Store, tokens *Issuer) *Verifier {
	return &Verifier{
		store:        store,
		tokens:       tokens,
		Timeout:      5 * time.Second,
		TouchTimeout: 5 * time.Second,
		now:          time.Now,
	}
}

func (v *Verifier) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.Timeout > 0 {
		return context.WithTimeout(ctx, v.Timeout)
	}
	return context.WithCancel(ctx)
}

// VerifyBearer validates a session token and re-reads the user so that role
// changes and deactivation take effect on the next request. The token's
// permission snapshot is not used.
func (v *Verifier) VerifyBearer(ctx context.Context, token string) (*UserIdentity, error) {
	if v.tokens == nil {
		return nil, errNoIssuer
	}
	claims, err := v.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	ctx, cancel := v.bounded(ctx)
	defer cancel()
	u, err := v.store.FindUserByID(ctx, claims.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, credErr(ReasonInactiveUser)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load user %d: %w", claims.UserID, err)
	}
	if !u.IsActive {
		return nil, credErr(ReasonInactiveUser)
	}
	return &UserIdentity{
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		RoleID:      u.RoleID,
		Permissions: u.Permissions(),
		Active:      u.IsActive,
	}, nil
}

// VerifyAPIKey looks up a raw key by digest. Unknown and inactive keys fail
// with ReasonInvalidAPIKey; keys past their expiry with ReasonAPIKeyExpired.
// On success the key's lastUsed time is recorded in the background.
func (v *Verifier) VerifyAPIKey(ctx context.Context, raw string) (*APIKeyIdentity, error) {
	if raw == "" {
		return nil, credErr(ReasonInvalidAPIKey)
	}
	lookupCtx, cancel := v.bounded(ctx)
	defer cancel()
	k, err := v.store.FindAPIKeyByHash(lookupCtx, HashAPIKey(raw))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, credErr(ReasonInvalidAPIKey)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load api key: %w", err)
	}
	if !k.IsActive {
		return nil, credErr(ReasonInvalidAPIKey)
	}
	now := v.now()
	if k.Expired(now) {
		return nil, credErr(ReasonAPIKeyExpired)
	}

	v.touch(ctx, k.ID, now)

	used := now
	return &APIKeyIdentity{
		KeyID:       k.ID,
		Name:        k.Name,
		Permissions: append([]string{}, k.Permissions...),
		RateLimit:   k.RateLimit,
		ExpiresAt:   k.ExpiresAt,
		LastUsed:    &used,
	}, nil
}

// touch records lastUsed without holding up the request. The update is
// detached from the request's cancellation.
func (v *Verifier) touch(ctx context.Context, id string, at time.Time) {
	v.pending.Add(1)
	go func() {
		defer v.pending.Done()
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.TouchTimeout)
		defer cancel()
		if err := v.store.TouchAPIKey(tctx, id, at); err != nil {
			log.Warn().Err(err).Str("api_key_id", id).Msg("api key last-used update failed")
		}
	}()
}

// Flush waits for in-flight lastUsed updates.
func (v *Verifier) Flush() { v.pending.Wait() }
