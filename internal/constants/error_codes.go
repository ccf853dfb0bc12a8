package constants

const (
	// Validation
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidCode          = "INVALID_CODE"
	ErrCodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"

	// Authentication and access
	ErrCodeMissingCredentials = "MISSING_CREDENTIALS"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeAuthFailed         = "AUTH_FAILED"
	ErrCodeForbidden          = "FORBIDDEN"

	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeAlreadyFavorited = "ALREADY_FAVORITED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
