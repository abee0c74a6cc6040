// Package storage keeps uploaded audio files.
//
// Two backends implement Store:
//   - Disk  (default) files under UPLOAD_DIR
//   - MinIO (when MINIO_ENDPOINT is set) objects in one S3-compatible bucket
//
// Names are flat: no directories, only [A-Za-z0-9._-]. The upload service
// generates them, and the /uploads/{name} route checks them with ValidName
// before touching a backend.
package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"time"
)

var (
	ErrNotFound    = errors.New("storage: object not found")
	ErrInvalidName = errors.New("storage: invalid object name")
)

// Store is implemented by every storage backend.
type Store interface {
	// Save writes r under name. size is the byte count, or -1 if unknown.
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	// Open returns the stored object. The caller must Close it.
	Open(ctx context.Context, name string) (*Object, error)
	// Remove deletes name. Removing a missing object is not an error.
	Remove(ctx context.Context, name string) error
}

// Object is an open stored file. It is seekable so it can be served with
// http.ServeContent, which answers Range requests for audio scrubbing.
type Object struct {
	io.ReadSeekCloser
	Name        string
	Size        int64
	ModTime     time.Time
	ContentType string
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

// ValidName reports whether name is a legal flat object name.
// A leading dot is refused, which also rules out "." and "..".
func ValidName(name string) bool {
	return len(name) <= 255 && namePattern.MatchString(name)
}
