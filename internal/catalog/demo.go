package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Demo answers searches with two fixed results. It lets the app be tried
// without a YouTube API key.
type Demo struct{}

var demoVideoIDs = []string{"dQw4w9WgXcQ", "kJQP7kiw5Fk"}

func (Demo) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		q = "demo"
	}

	out := make([]Video, 0, len(demoVideoIDs))
	for i, id := range demoVideoIDs {
		if i >= ClampLimit(limit) {
			break
		}
		out = append(out, Video{
			VideoID:      id,
			Title:        fmt.Sprintf("Demo result for %q (%d)", q, i+1),
			ThumbnailURL: "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg",
			Duration:     Unknown,
			Views:        Unknown,
		})
	}
	return out, nil
}

// Video knows only the demo IDs.
func (d Demo) Video(ctx context.Context, videoID string) (*Video, error) {
	for i, id := range demoVideoIDs {
		if id == videoID {
			return &Video{
				VideoID:      id,
				Title:        fmt.Sprintf("Demo video %d", i+1),
				ThumbnailURL: "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg",
				Duration:     Unknown,
				Views:        Unknown,
			}, nil
		}
	}
	return nil, ErrNotFound
}
