// Package catalog looks videos up in the external catalog (YouTube).
//
// Three implementations of Catalog, stacked by the server at startup:
//
//	Cached (Redis)  →  YouTube (Data API v3, needs an API key)
//	                or Keyless (demo search + kkdai/youtube metadata)
//
// Search results carry display-ready strings (duration "03:45", views
// "1,234") so the browser client renders them as is.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound means the catalog has no video with that ID.
	ErrNotFound = errors.New("catalog: video not found")
	// ErrUpstream wraps every failure to reach or understand the catalog.
	ErrUpstream = errors.New("catalog: upstream unavailable")
)

// Unknown is shown for a duration or view count the catalog did not report.
const Unknown = "N/A"

// Search limits.
const (
	DefaultLimit = 9
	MaxLimit     = 25
)

// Video is one catalog entry as the client displays it.
type Video struct {
	VideoID      string `json:"videoId"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Channel      string `json:"channel,omitempty"`
	Duration     string `json:"duration"`
	Views        string `json:"views"`
}

// Catalog is implemented by every lookup backend.
type Catalog interface {
	Search(ctx context.Context, query string, limit int) ([]Video, error)
	Video(ctx context.Context, videoID string) (*Video, error)
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidVideoID reports whether id has the shape of a YouTube video ID.
func ValidVideoID(id string) bool {
	return videoIDPattern.MatchString(id)
}

var isoDurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration parses the PT#H#M#S durations the Data API returns.
// Day components and anything else are rejected.
func ParseISODuration(s string) (time.Duration, bool) {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil || s == "PT" {
		return 0, false
	}

	var total time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		total += time.Duration(n) * unit
	}
	return total, true
}

// FormatClock renders d as "mm:ss", or "h:mm:ss" from one hour up.
func FormatClock(d time.Duration) string {
	if d < 0 {
		return Unknown
	}
	secs := int64(d / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatViews groups digits by thousands: 1234567 → "1,234,567".
func FormatViews(n int64) string {
	if n < 0 {
		return Unknown
	}
	digits := strconv.FormatInt(n, 10)

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ClampLimit maps a requested result count into [1, MaxLimit];
// zero or negative means DefaultLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
