// Package auth implements the request authentication gateway: credential
// verification for bearer tokens and API keys, trust-mode classification of
// incoming requests, and the permission gate applied before handlers run.
//
// An authenticated request carries exactly one Identity. The concrete type
// determines how permissions are evaluated and whether per-key rate limiting
// applies.
package auth

import (
	"strconv"
	"time"
)

// Mode names the trust mode an identity was admitted under.
type Mode string

const (
	ModeUser       Mode = "jwt"
	ModeAPIKey     Mode = "api_key"
	ModeSameOrigin Mode = "same_origin"
)

// Identity is the resolved principal of a request.
type Identity interface {
	// Mode reports the trust mode.
	Mode() Mode
	// Subject is a stable principal key, e.g. "user:7" or "apikey:<uuid>".
	Subject() string
}

// UserIdentity is a signed-in user whose permissions were re-read from the
// store for this request.
type UserIdentity struct {
	UserID      uint
	Username    string
	Email       string
	DisplayName string
	RoleID      uint
	Permissions []string
	Active      bool
}

// Mode implements Identity.
func (*UserIdentity) Mode() Mode { return ModeUser }

// Subject implements Identity.
func (u *UserIdentity) Subject() string { return "user:" + strconv.FormatUint(uint64(u.UserID), 10) }

// APIKeyIdentity is an external client authenticated by an API key.
type APIKeyIdentity struct {
	KeyID       string
	Name        string
	Permissions []string
	RateLimit   int
	ExpiresAt   *time.Time
	LastUsed    *time.Time
}

// Mode implements Identity.
func (*APIKeyIdentity) Mode() Mode { return ModeAPIKey }

// Subject implements Identity.
func (k *APIKeyIdentity) Subject() string { return "apikey:" + k.KeyID }

// SameOriginIdentity is the anonymous first-party caller admitted because
// its origin matches the server. It carries no credential.
type SameOriginIdentity struct{}

// Mode implements Identity.
func (SameOriginIdentity) Mode() Mode { return ModeSameOrigin }

// Subject implements Identity.
func (SameOriginIdentity) Subject() string { return "same-origin" }

func hasPermission(perms []string, p string) bool {
	for _, g := range perms {
		if g == p {
			return true
		}
	}
	return false
}
