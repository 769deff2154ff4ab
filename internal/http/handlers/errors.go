package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on the code, not
// on the message text, so codes are stable once published.
//
// Gateway rejections (401/403/429 from the auth and permission middleware)
// use middleware.AuthError bodies and never reach these codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeInternal     = "internal_error"

	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeSendFailed         = "send_failed"
	ErrCodeCreateFailed       = "create_failed"
	ErrCodeListFailed         = "list_failed"
	ErrCodeUpdateFailed       = "update_failed"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
)
