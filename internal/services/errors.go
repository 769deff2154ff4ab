// Package services defines the business logic for notifications, sign-in,
// and API key management. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Notification errors.
var (
	// ErrNotificationNotFound indicates that the caller has no delivery row
	// for the requested notification.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidNotification is returned when notification content fails
	// validation (empty title/message, unknown type or priority).
	ErrInvalidNotification = errors.New("invalid notification")
)

// Sign-in errors.
var (
	// ErrInvalidCredentials is returned for an unknown username, a wrong
	// password, or a deactivated account. The cases are not distinguished.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// API key errors.
var (
	// ErrAPIKeyNotFound indicates that no key has the given id.
	ErrAPIKeyNotFound = errors.New("api key not found")

	// ErrInvalidAPIKeyRequest is returned when key creation input is invalid.
	ErrInvalidAPIKeyRequest = errors.New("invalid api key request")
)
