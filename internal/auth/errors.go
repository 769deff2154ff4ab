package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthenticated indicates a missing, invalid, or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnauthorized indicates a valid credential lacking a required permission.
	ErrUnauthorized = errors.New("unauthorized")
)

// Client-facing reasons carried by CredentialError.
const (
	ReasonAuthRequired  = "Authentication required"
	ReasonInvalidAPIKey = "Invalid API key"
	ReasonAPIKeyExpired = "API key expired"
	ReasonInvalidToken  = "Invalid token"
	ReasonInactiveUser  = "User not found or inactive"
)

// CredentialError describes why authentication failed. It matches
// ErrUnauthenticated with errors.Is.
type CredentialError struct {
	Reason string
}

func (e *CredentialError) Error() string { return "unauthenticated: " + e.Reason }

// Unwrap returns ErrUnauthenticated.
func (e *CredentialError) Unwrap() error { return ErrUnauthenticated }

func credErr(reason string) error { return &CredentialError{Reason: reason} }

// PermissionError reports the permission that was required. Granted is only
// populated when the caller may see its own grants (API keys).
type PermissionError struct {
	Required string
	Granted  []string
}

func (e *PermissionError) Error() string {
	if len(e.Granted) == 0 {
		return fmt.Sprintf("unauthorized: requires %q", e.Required)
	}
	return fmt.Sprintf("unauthorized: requires %q, granted [%s]", e.Required, strings.Join(e.Granted, ", "))
}

// Unwrap returns ErrUnauthorized.
func (e *PermissionError) Unwrap() error { return ErrUnauthorized }
