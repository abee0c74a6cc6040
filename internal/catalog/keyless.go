package catalog

import (
	"context"
	"fmt"

	"github.com/kkdai/youtube/v2"
)

// videoFetcher is the part of youtube.Client that Keyless uses.
type videoFetcher interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
}

// Keyless serves a catalog without a Data API key: searches return the
// demo results, and single-video lookups read the public watch page
// through kkdai/youtube.
type Keyless struct {
	Demo
	client videoFetcher
}

func NewKeyless() *Keyless {
	return &Keyless{client: &youtube.Client{}}
}

func (k *Keyless) Video(ctx context.Context, videoID string) (*Video, error) {
	if !ValidVideoID(videoID) {
		return nil, ErrNotFound
	}

	v, err := k.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrUpstream, videoID, err)
	}

	out := &Video{
		VideoID:  v.ID,
		Title:    v.Title,
		Channel:  v.Author,
		Duration: Unknown,
		Views:    FormatViews(int64(v.Views)),
	}
	if out.VideoID == "" {
		out.VideoID = videoID
	}
	if v.Duration > 0 {
		out.Duration = FormatClock(v.Duration)
	}
	// Thumbnails come smallest first; the last one is the sharpest.
	if n := len(v.Thumbnails); n > 0 {
		out.ThumbnailURL = v.Thumbnails[n-1].URL
	} else {
		out.ThumbnailURL = "https://i.ytimg.com/vi/" + videoID + "/mqdefault.jpg"
	}
	return out, nil
}
