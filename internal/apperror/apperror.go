// Package apperror defines the domain errors shared by every layer.
//
// TWO PIECES OF INFORMATION PER ERROR:
//   - a KIND (ErrNotFound, ErrValidation, ...) which decides the HTTP status
//   - a CODE ("playlist_not_found", "invalid_rating", ...) which the browser
//     client switches on to pick the message it shows
//
// The kind is a sentinel wrapped by *AppError, so callers use errors.Is:
//
//	if errors.Is(err, apperror.ErrNotFound) { ... }
//
// and the code is read back with CodeOf(err).
package apperror

import (
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTooLarge     = errors.New("too large")
	ErrUpstream     = errors.New("upstream unavailable")
)

// Machine-readable codes sent to the client in the "error" field.
const (
	CodeMissingFields      = "missing_fields"
	CodeWeakPassword       = "weak_password"
	CodeUsernameExists     = "username_exists"
	CodeInvalidCredentials = "invalid_credentials"
	CodeUnauthorized       = "unauthorized"
	CodeUserNotFound       = "user_not_found"
	CodeMissingName        = "missing_name"
	CodePlaylistNameExists = "playlist_name_exists"
	CodePlaylistIDExists   = "playlist_id_exists"
	CodePlaylistNotFound   = "playlist_not_found"
	CodeItemNotFound       = "item_not_found"
	CodeAlreadyExists      = "already_exists"
	CodeInvalidRating      = "invalid_rating"
	CodeMissingFile        = "missing_file"
	CodeInvalidFileType    = "invalid_file_type"
	CodeFileTooLarge       = "file_too_large"
	CodeInvalidJSON        = "invalid_json"
	CodeCatalogUnavailable = "catalog_unavailable"
	CodeVideoNotFound      = "video_not_found"
	CodeInternal           = "internal_error"
)

type AppError struct {
	Err     error  // kind sentinel
	Code    string // machine-readable code
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(code, message string) *AppError {
	return &AppError{Err: ErrNotFound, Code: code, Message: message}
}

func ValidationFailed(code, field, message string) *AppError {
	return &AppError{Err: ErrValidation, Code: code, Message: message, Field: field}
}

func Conflict(code, message string) *AppError {
	return &AppError{Err: ErrConflict, Code: code, Message: message}
}

// Unauthorized covers both "not logged in" and "wrong password".
// HTTP handlers map this to 401.
func Unauthorized(code, message string) *AppError {
	return &AppError{Err: ErrUnauthorized, Code: code, Message: message}
}

func TooLarge(code, message string) *AppError {
	return &AppError{Err: ErrTooLarge, Code: code, Message: message}
}

// Upstream marks a failure of an external dependency (the video catalog).
func Upstream(code, message string) *AppError {
	return &AppError{Err: ErrUpstream, Code: code, Message: message}
}

// CodeOf returns the code of the first *AppError in err's chain,
// or CodeInternal when there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	return CodeInternal
}
