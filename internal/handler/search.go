package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/mixtape/internal/catalog"
	"github.com/sakif/mixtape/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
	logger *slog.Logger
}

func NewSearchHandler(search *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{search: search, logger: logger}
}

type searchResponse struct {
	Items []catalog.Video `json:"items"`
}

type videoResponse struct {
	Video *catalog.Video `json:"video"`
}

// HandleSearch queries the video catalog.
//
// HTTP: GET /api/search?q=lofi&limit=9
//
// A missing or unparsable limit falls back to the default; the service
// clamps everything else into range.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	videos, err := h.search.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: videos})
}

// HandleVideo returns one video's metadata.
//
// HTTP: GET /api/videos/{videoId}
func (h *SearchHandler) HandleVideo(w http.ResponseWriter, r *http.Request) {
	v, err := h.search.Video(r.Context(), chi.URLParam(r, "videoId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, videoResponse{Video: v})
}
