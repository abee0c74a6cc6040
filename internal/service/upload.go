package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/metrics"
	"github.com/sakif/mixtape/internal/model"
	"github.com/sakif/mixtape/internal/storage"
)

// UploadURLPrefix is where stored audio is served from.
const UploadURLPrefix = "/uploads/"

// UploadService stores an audio file and adds it to a playlist.
//
// ORDER OF OPERATIONS:
//  1. validate the file (present, MP3, size)
//  2. check the playlist exists and belongs to the caller
//  3. store the bytes
//  4. insert the item; on failure remove the bytes again
//
// Files are never removed when an item or playlist is deleted later.
type UploadService struct {
	playlists *PlaylistService
	store     storage.Store
	maxBytes  int64
	logger    *slog.Logger
}

func NewUploadService(playlists *PlaylistService, store storage.Store, maxBytes int64, logger *slog.Logger) *UploadService {
	return &UploadService{
		playlists: playlists,
		store:     store,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// UploadInput is one file from a multipart form.
type UploadInput struct {
	Filename    string // as sent by the browser
	ContentType string // declared MIME type of the part
	Size        int64
	Title       string // optional, defaults to Filename
	Body        io.Reader
}

// IsAudioUpload accepts a ".mp3" filename (any case) or an MP3 MIME type.
// Either one is enough.
func IsAudioUpload(filename, contentType string) bool {
	if strings.HasSuffix(strings.ToLower(filename), ".mp3") {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return ct == "audio/mpeg" || ct == "audio/mp3"
}

// maxBaseLen keeps stored names well under storage's 255-byte limit.
const maxBaseLen = 120

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// StoredName derives a unique, URL-safe object name from an uploaded
// filename: "My Song!.MP3" → "My_Song_<uuid>.mp3".
func StoredName(original string) string {
	if original == "" {
		original = "audio.mp3"
	}
	safe := strings.ReplaceAll(path.Base(strings.ReplaceAll(original, `\`, "/")), " ", "_")
	safe = unsafeNameChars.ReplaceAllString(safe, "")

	ext := path.Ext(safe)
	base := strings.TrimLeft(strings.TrimSuffix(safe, ext), ".")
	ext = strings.ToLower(ext)
	if ext == "" || ext == "." {
		ext = ".mp3"
	}
	if base == "" {
		base = "audio"
	}
	if len(base) > maxBaseLen {
		base = base[:maxBaseLen]
	}
	return base + "_" + uuid.NewString() + ext
}

// Upload stores in and appends it to the playlist as an audio item.
func (s *UploadService) Upload(ctx context.Context, ownerID, playlistID string, in UploadInput) (*model.Item, error) {
	if in.Body == nil {
		return nil, apperror.ValidationFailed(apperror.CodeMissingFile, "file", "an MP3 file is required")
	}
	if !IsAudioUpload(in.Filename, in.ContentType) {
		return nil, apperror.ValidationFailed(apperror.CodeInvalidFileType, "file", "only MP3 files are allowed")
	}
	if s.maxBytes > 0 && in.Size > s.maxBytes {
		return nil, apperror.TooLarge(apperror.CodeFileTooLarge,
			fmt.Sprintf("file must be %d MiB or smaller", s.maxBytes>>20))
	}

	if _, err := s.playlists.Get(ctx, ownerID, playlistID); err != nil {
		return nil, err
	}

	name := StoredName(in.Filename)
	if err := s.store.Save(ctx, name, in.Body, in.Size, "audio/mpeg"); err != nil {
		return nil, fmt.Errorf("service/upload: storing %s: %w", name, err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = in.Filename
	}
	if title == "" {
		title = name
	}

	item, err := s.playlists.AddAudio(ctx, ownerID, playlistID, title, UploadURLPrefix+name)
	if err != nil {
		// The request may already be cancelled; the cleanup must still run.
		if rmErr := s.store.Remove(context.WithoutCancel(ctx), name); rmErr != nil {
			s.logger.Error("removing orphaned upload failed",
				slog.String("name", name),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, err
	}

	if in.Size > 0 {
		metrics.UploadBytes.Add(float64(in.Size))
	}
	s.logger.Info("audio uploaded",
		slog.String("ownerID", ownerID),
		slog.String("playlistID", playlistID),
		slog.String("name", name),
		slog.Int64("bytes", in.Size),
	)
	return item, nil
}

// Open returns a stored upload for streaming.
func (s *UploadService) Open(ctx context.Context, name string) (*storage.Object, error) {
	return s.store.Open(ctx, name)
}
