package models

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNetwork            = errors.New("network error")
	ErrAuthRequired       = errors.New("authentication required")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
)

// Retryable reports whether the caller may retry the failed operation with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrNetwork)
}
