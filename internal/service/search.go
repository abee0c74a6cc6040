package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/catalog"
)

// SearchService fronts the video catalog and turns its errors into
// client-facing codes.
type SearchService struct {
	catalog catalog.Catalog
	logger  *slog.Logger
}

func NewSearchService(c catalog.Catalog, logger *slog.Logger) *SearchService {
	return &SearchService{catalog: c, logger: logger}
}

// Search returns up to limit videos. A blank query returns an empty list
// without calling the catalog.
func (s *SearchService) Search(ctx context.Context, query string, limit int) ([]catalog.Video, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []catalog.Video{}, nil
	}

	videos, err := s.catalog.Search(ctx, query, catalog.ClampLimit(limit))
	if err != nil {
		return nil, s.translate(err, "search", query)
	}
	if videos == nil {
		videos = []catalog.Video{}
	}
	return videos, nil
}

func (s *SearchService) Video(ctx context.Context, videoID string) (*catalog.Video, error) {
	v, err := s.catalog.Video(ctx, strings.TrimSpace(videoID))
	if err != nil {
		return nil, s.translate(err, "video", videoID)
	}
	return v, nil
}

func (s *SearchService) translate(err error, op, arg string) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return apperror.NotFound(apperror.CodeVideoNotFound, "video not found: "+arg)
	}
	s.logger.Warn("catalog lookup failed",
		slog.String("op", op),
		slog.String("arg", arg),
		slog.String("error", err.Error()),
	)
	return apperror.Upstream(apperror.CodeCatalogUnavailable, "the video catalog is unavailable, try again later")
}
