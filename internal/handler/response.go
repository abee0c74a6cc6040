package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError, so every error body
// has the same shape:
//
//	{"error": "playlist_not_found", "message": "playlist not found: pl_..."}
//
// "error" is the machine-readable code the browser client switches on;
// "message" is for humans and logs.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/auth"
)

// maxJSONBytes caps JSON request bodies.
const maxJSONBytes = 1 << 20

// ErrorResponse is the error body of every API endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

var ok = okResponse{OK: true}

// writeJSON sends data as JSON with the given status.
// Headers must be set before WriteHeader; the body comes last.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all that is left is to log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error kind to its HTTP status.
//
// The service layer never sees HTTP; this is the one place where
// apperror kinds become status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest // 400
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized // 401
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound // 404
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict // 409
	case errors.Is(err, apperror.ErrTooLarge):
		return http.StatusRequestEntityTooLarge // 413
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err as an ErrorResponse.
//
// Errors without an *AppError in their chain are unexpected (a failed query,
// a full disk). They are logged in full and answered with a generic 500:
// the raw text may hold SQL or file paths.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   apperror.CodeInternal,
			Message: "an internal error occurred",
		})
		return
	}

	writeJSON(w, statusFor(err), ErrorResponse{
		Error:   apperror.CodeOf(err),
		Message: appErr.Message,
	})
}

// decodeJSON reads one JSON value from the body into dst. An empty body
// leaves dst untouched, so missing fields surface as the handler's own
// missing_* errors rather than invalid_json.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.TooLarge(apperror.CodeInvalidJSON, "request body is too large")
		}
		return apperror.ValidationFailed(apperror.CodeInvalidJSON, "", "request body must be valid JSON")
	}
	return nil
}

// ownerID is the user ID of the session RequireAuth attached.
// Routes using it are always behind RequireAuth.
func ownerID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
