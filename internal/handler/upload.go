package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/service"
	"github.com/sakif/mixtape/internal/storage"
)

// multipartOverhead is room for the form boundaries and the title field
// on top of the file itself.
const multipartOverhead = 1 << 20

// memoryLimit is how much of a multipart form is kept in RAM; larger file
// parts spill to a temp file that RemoveAll cleans up.
const memoryLimit = 8 << 20

// UploadHandler accepts audio uploads and serves stored files back.
type UploadHandler struct {
	uploads  *service.UploadService
	maxBytes int64
	logger   *slog.Logger
}

func NewUploadHandler(uploads *service.UploadService, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, maxBytes: maxBytes, logger: logger}
}

// HandleUpload stores one MP3 and appends it to the playlist.
//
// HTTP: POST /api/playlists/{id}/audio   (alias /api/playlists/{id}/mp3)
// FORM: file=<the mp3>, title=<optional>
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	// MaxBytesReader stops reading (and fails the parse) once the body
	// passes the limit, so an oversized upload never fills the disk.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(memoryLimit); err != nil {
		writeError(w, r, h.logger, formError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.logger, formError(err))
		return
	}
	defer file.Close()

	item, err := h.uploads.Upload(r.Context(), ownerID(r), chi.URLParam(r, "id"), service.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Title:       r.FormValue("title"),
		Body:        file,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, itemResponse{OK: true, Item: item})
}

// formError maps multipart parsing failures onto the upload error codes.
func formError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return apperror.TooLarge(apperror.CodeFileTooLarge, "file is larger than the upload limit")
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return apperror.ValidationFailed(apperror.CodeMissingFile, "file", "an MP3 file is required")
	case strings.Contains(err.Error(), "request body too large"):
		// multipart wraps the MaxBytesReader error as text in some paths
		return apperror.TooLarge(apperror.CodeFileTooLarge, "file is larger than the upload limit")
	default:
		return apperror.ValidationFailed(apperror.CodeMissingFile, "file", "could not read the upload form")
	}
}

// HandleServe streams a stored upload. http.ServeContent answers Range
// requests, so the audio player can seek.
//
// HTTP: GET /uploads/{name}
func (h *UploadHandler) HandleServe(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !storage.ValidName(name) {
		http.NotFound(w, r)
		return
	}

	obj, err := h.uploads.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("opening upload failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer obj.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, obj.Name, obj.ModTime, obj)
}
