package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/moby/locker"
	"github.com/rs/xid"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/metrics"
	"github.com/sakif/mixtape/internal/model"
	"github.com/sakif/mixtape/internal/repository"
)

// Mp3IDPrefix starts the ID of every uploaded audio item.
const Mp3IDPrefix = "mp3_"

// Item sort orders accepted by FilterItems. Any other value, the empty
// string included, sorts by title.
const (
	SortRating = "rating"
	SortTitle  = "title"
)

// PlaylistService owns the playlist rules: naming, item validation, ratings.
//
// CONCURRENCY:
// Every mutation takes the owner's lock before touching the repository, and
// the repository runs each mutation in one transaction. Two tabs of the same
// user adding items at once are applied one after the other; different
// users never wait on each other.
type PlaylistService struct {
	repo   repository.PlaylistRepository
	locks  *locker.Locker
	logger *slog.Logger
}

func NewPlaylistService(repo repository.PlaylistRepository, logger *slog.Logger) *PlaylistService {
	return &PlaylistService{
		repo:   repo,
		locks:  locker.New(),
		logger: logger,
	}
}

// lockOwner blocks until ownerID's lock is free. The entry is dropped from
// the locker once the last holder or waiter unlocks.
func (s *PlaylistService) lockOwner(ownerID string) (unlock func()) {
	s.locks.Lock(ownerID)
	return func() {
		if err := s.locks.Unlock(ownerID); err != nil {
			s.logger.Error("releasing owner lock", "owner", ownerID, "error", err)
		}
	}
}

func (s *PlaylistService) List(ctx context.Context, ownerID string) ([]model.Playlist, error) {
	playlists, err := s.repo.ListPlaylists(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/playlist: listing for %s: %w", ownerID, err)
	}
	return playlists, nil
}

func (s *PlaylistService) Get(ctx context.Context, ownerID, playlistID string) (*model.Playlist, error) {
	p, err := s.repo.GetPlaylist(ctx, ownerID, playlistID)
	if err != nil {
		return nil, fmt.Errorf("service/playlist: getting %s: %w", playlistID, err)
	}
	return p, nil
}

// Create makes an empty playlist. The name is trimmed; blank → missing_name.
func (s *PlaylistService) Create(ctx context.Context, ownerID, name string) (*model.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed(apperror.CodeMissingName, "name", "playlist name is required")
	}

	unlock := s.lockOwner(ownerID)
	defer unlock()

	p := &model.Playlist{Name: name}
	if err := s.repo.CreatePlaylist(ctx, ownerID, p); err != nil {
		return nil, fmt.Errorf("service/playlist: creating %q: %w", name, err)
	}

	metrics.PlaylistsCreated.Inc()
	s.logger.Info("playlist created",
		slog.String("ownerID", ownerID),
		slog.String("playlistID", p.ID),
		slog.String("name", p.Name),
	)
	return p, nil
}

func (s *PlaylistService) Delete(ctx context.Context, ownerID, playlistID string) error {
	unlock := s.lockOwner(ownerID)
	defer unlock()

	if err := s.repo.DeletePlaylist(ctx, ownerID, playlistID); err != nil {
		return fmt.Errorf("service/playlist: deleting %s: %w", playlistID, err)
	}

	s.logger.Info("playlist deleted",
		slog.String("ownerID", ownerID),
		slog.String("playlistID", playlistID),
	)
	return nil
}

// AddVideoInput is the body of "add video to playlist". All fields are required.
type AddVideoInput struct {
	VideoID      string
	Title        string
	ThumbnailURL string
}

// AddVideo appends a catalog video. A video already in this playlist gives
// already_exists.
func (s *PlaylistService) AddVideo(ctx context.Context, ownerID, playlistID string, in AddVideoInput) (*model.Item, error) {
	videoID := strings.TrimSpace(in.VideoID)
	title := strings.TrimSpace(in.Title)
	thumb := strings.TrimSpace(in.ThumbnailURL)
	if videoID == "" || title == "" || thumb == "" {
		return nil, apperror.ValidationFailed(apperror.CodeMissingFields, "",
			"videoId, title and thumbnailUrl are required")
	}

	item := &model.Item{
		Type:         model.ItemVideo,
		VideoID:      videoID,
		Title:        title,
		ThumbnailURL: thumb,
		Rating:       model.MinRating,
	}
	if err := s.addItem(ctx, ownerID, playlistID, item); err != nil {
		return nil, err
	}
	return item, nil
}

// AddAudio appends an uploaded file that is already stored at fileURL.
func (s *PlaylistService) AddAudio(ctx context.Context, ownerID, playlistID, title, fileURL string) (*model.Item, error) {
	title = strings.TrimSpace(title)
	if title == "" || fileURL == "" {
		return nil, apperror.ValidationFailed(apperror.CodeMissingFields, "",
			"title and fileUrl are required")
	}

	item := &model.Item{
		Type:    model.ItemAudio,
		Mp3ID:   Mp3IDPrefix + xid.New().String(),
		Title:   title,
		FileURL: fileURL,
		Rating:  model.MinRating,
	}
	if err := s.addItem(ctx, ownerID, playlistID, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *PlaylistService) addItem(ctx context.Context, ownerID, playlistID string, item *model.Item) error {
	unlock := s.lockOwner(ownerID)
	defer unlock()

	if err := s.repo.AddItem(ctx, ownerID, playlistID, item); err != nil {
		ref := item.Ref()
		return fmt.Errorf("service/playlist: adding %s %s to %s: %w", ref.Type, ref.ID, playlistID, err)
	}

	metrics.ItemsAdded.WithLabelValues(string(item.Type)).Inc()
	s.logger.Info("item added",
		slog.String("ownerID", ownerID),
		slog.String("playlistID", playlistID),
		slog.String("type", string(item.Type)),
		slog.String("ref", item.Ref().ID),
	)
	return nil
}

// ParseRating accepts the textual form of a JSON number ("3", "3.0", "4e0")
// and returns it as an integer rating.
//
// Rejected with invalid_rating: empty input, non-numbers, NaN/Inf,
// fractions like 2.5, and anything outside [MinRating, MaxRating].
func ParseRating(raw string) (int, error) {
	invalid := apperror.ValidationFailed(apperror.CodeInvalidRating, "rating",
		fmt.Sprintf("rating must be a whole number from %d to %d", model.MinRating, model.MaxRating))

	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid
	}
	if f != math.Trunc(f) || f < model.MinRating || f > model.MaxRating {
		return 0, invalid
	}
	return int(f), nil
}

// SetRating parses raw with ParseRating and stores it on the item.
func (s *PlaylistService) SetRating(ctx context.Context, ownerID, playlistID string, ref model.ItemRef, raw string) error {
	rating, err := ParseRating(raw)
	if err != nil {
		return err
	}

	unlock := s.lockOwner(ownerID)
	defer unlock()

	if err := s.repo.SetRating(ctx, ownerID, playlistID, ref, rating); err != nil {
		return fmt.Errorf("service/playlist: rating %s %s: %w", ref.Type, ref.ID, err)
	}

	s.logger.Debug("item rated",
		slog.String("playlistID", playlistID),
		slog.String("ref", ref.ID),
		slog.Int("rating", rating),
	)
	return nil
}

func (s *PlaylistService) RemoveItem(ctx context.Context, ownerID, playlistID string, ref model.ItemRef) error {
	unlock := s.lockOwner(ownerID)
	defer unlock()

	if err := s.repo.RemoveItem(ctx, ownerID, playlistID, ref); err != nil {
		return fmt.Errorf("service/playlist: removing %s %s: %w", ref.Type, ref.ID, err)
	}

	s.logger.Info("item removed",
		slog.String("ownerID", ownerID),
		slog.String("playlistID", playlistID),
		slog.String("ref", ref.ID),
	)
	return nil
}

// Containing returns the IDs of the owner's playlists that hold videoID.
// The client uses it to keep a video in at most one playlist.
func (s *PlaylistService) Containing(ctx context.Context, ownerID, videoID string) ([]string, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, apperror.ValidationFailed(apperror.CodeMissingFields, "videoId", "videoId is required")
	}

	ids, err := s.repo.PlaylistsContaining(ctx, ownerID, videoID)
	if err != nil {
		return nil, fmt.Errorf("service/playlist: playlists containing %s: %w", videoID, err)
	}
	return ids, nil
}

// Items returns one playlist's items, filtered and sorted by FilterItems.
func (s *PlaylistService) Items(ctx context.Context, ownerID, playlistID, query, sortBy string) ([]model.Item, error) {
	p, err := s.Get(ctx, ownerID, playlistID)
	if err != nil {
		return nil, err
	}
	return FilterItems(p.Items, query, sortBy), nil
}

// FilterItems keeps the items whose title contains query (case-insensitive)
// and orders them:
//
//	SortRating → highest rating first; equal ratings keep insertion order
//	otherwise  → title A→Z, ignoring case; equal titles keep insertion order
//
// The input slice is not modified. The result is never nil.
func FilterItems(items []model.Item, query, sortBy string) []model.Item {
	q := strings.ToLower(strings.TrimSpace(query))

	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if q == "" || strings.Contains(strings.ToLower(it.Title), q) {
			out = append(out, it)
		}
	}

	if sortBy == SortRating {
		slices.SortStableFunc(out, func(a, b model.Item) int {
			return cmp.Compare(b.Rating, a.Rating)
		})
		return out
	}
	slices.SortStableFunc(out, func(a, b model.Item) int {
		return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})
	return out
}
