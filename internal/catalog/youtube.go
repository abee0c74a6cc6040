package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// YouTube talks to the YouTube Data API v3.
//
// A search costs two calls: /search for IDs, titles and thumbnails, then
// /videos for durations and view counts. Every outbound call first takes a
// token from limiter so a burst of users cannot drain the API quota.
type YouTube struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewYouTube builds a client. baseURL is normally
// "https://www.googleapis.com/youtube/v3"; rps is the outbound request rate.
// A nil client gets a default with a 10s timeout.
func NewYouTube(apiKey, baseURL string, rps float64, client *http.Client, logger *slog.Logger) *YouTube {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &YouTube{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

type thumbnail struct {
	URL string `json:"url"`
}

type ytSnippet struct {
	Title        string `json:"title"`
	ChannelTitle string `json:"channelTitle"`
	Thumbnails   struct {
		Default thumbnail `json:"default"`
		Medium  thumbnail `json:"medium"`
		High    thumbnail `json:"high"`
	} `json:"thumbnails"`
}

// thumb prefers the medium size, the one the result cards are laid out for.
func (s ytSnippet) thumb() string {
	for _, u := range []string{s.Thumbnails.Medium.URL, s.Thumbnails.High.URL, s.Thumbnails.Default.URL} {
		if u != "" {
			return u
		}
	}
	return ""
}

type ytSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet ytSnippet `json:"snippet"`
	} `json:"items"`
}

type ytVideosResponse struct {
	Items []struct {
		ID             string    `json:"id"`
		Snippet        ytSnippet `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			// The API sends counts as strings.
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (c *YouTube) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(ClampLimit(limit)))
	params.Set("q", query)

	var body ytSearchResponse
	if err := c.get(ctx, "/search", params, &body); err != nil {
		return nil, err
	}

	out := make([]Video, 0, len(body.Items))
	ids := make([]string, 0, len(body.Items))
	for _, it := range body.Items {
		if it.ID.VideoID == "" {
			continue
		}
		out = append(out, Video{
			VideoID:      it.ID.VideoID,
			Title:        it.Snippet.Title,
			ThumbnailURL: it.Snippet.thumb(),
			Channel:      it.Snippet.ChannelTitle,
			Duration:     Unknown,
			Views:        Unknown,
		})
		ids = append(ids, it.ID.VideoID)
	}
	if len(ids) == 0 {
		return out, nil
	}

	// Details are decoration: without them the results are still usable.
	details, err := c.videos(ctx, "contentDetails,statistics", ids)
	if err != nil {
		c.logger.Warn("youtube video details failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return out, nil
	}
	for i := range out {
		if d, ok := details[out[i].VideoID]; ok {
			out[i].Duration = d.Duration
			out[i].Views = d.Views
		}
	}
	return out, nil
}

func (c *YouTube) Video(ctx context.Context, videoID string) (*Video, error) {
	if !ValidVideoID(videoID) {
		return nil, ErrNotFound
	}

	details, err := c.videos(ctx, "snippet,contentDetails,statistics", []string{videoID})
	if err != nil {
		return nil, err
	}
	v, ok := details[videoID]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (c *YouTube) videos(ctx context.Context, parts string, ids []string) (map[string]Video, error) {
	params := url.Values{}
	params.Set("part", parts)
	params.Set("id", strings.Join(ids, ","))

	var body ytVideosResponse
	if err := c.get(ctx, "/videos", params, &body); err != nil {
		return nil, err
	}

	out := make(map[string]Video, len(body.Items))
	for _, it := range body.Items {
		v := Video{
			VideoID:      it.ID,
			Title:        it.Snippet.Title,
			ThumbnailURL: it.Snippet.thumb(),
			Channel:      it.Snippet.ChannelTitle,
			Duration:     Unknown,
			Views:        Unknown,
		}
		if d, ok := ParseISODuration(it.ContentDetails.Duration); ok {
			v.Duration = FormatClock(d)
		}
		if n, err := strconv.ParseInt(it.Statistics.ViewCount, 10, 64); err == nil {
			v.Views = FormatViews(n)
		}
		out[it.ID] = v
	}
	return out, nil
}

// get performs one rate-limited API call and decodes the JSON body into dst.
func (c *YouTube) get(ctx context.Context, path string, params url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: waiting for rate limiter: %v", ErrUpstream, err)
	}

	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("catalog: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: youtube %s: %v", ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: youtube %s status %d", ErrUpstream, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decoding youtube %s: %v", ErrUpstream, path, err)
	}
	return nil
}
