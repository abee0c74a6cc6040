package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/mixtape/internal/model"
	"github.com/sakif/mixtape/internal/service"
)

// PlaylistHandler serves the playlist routes. Every route sits behind
// RequireAuth and only ever touches the caller's own playlists.
type PlaylistHandler struct {
	playlists *service.PlaylistService
	logger    *slog.Logger
}

func NewPlaylistHandler(playlists *service.PlaylistService, logger *slog.Logger) *PlaylistHandler {
	return &PlaylistHandler{playlists: playlists, logger: logger}
}

type playlistsResponse struct {
	Playlists []model.Playlist `json:"playlists"`
}

type playlistResponse struct {
	Playlist *model.Playlist `json:"playlist"`
}

type itemsResponse struct {
	Items []model.Item `json:"items"`
}

type itemResponse struct {
	OK   bool        `json:"ok"`
	Item *model.Item `json:"item"`
}

// HandleList returns every playlist of the caller, oldest first.
//
// HTTP: GET /api/playlists
func (h *PlaylistHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.playlists.List(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, playlistsResponse{Playlists: playlists})
}

type createPlaylistRequest struct {
	Name string `json:"name"`
}

// HandleCreate creates an empty playlist.
//
// HTTP: POST /api/playlists
// BODY: {"name": "Road Trip"}
func (h *PlaylistHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p, err := h.playlists.Create(r.Context(), ownerID(r), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, playlistResponse{Playlist: p})
}

// HandleGet returns one playlist with its items.
//
// HTTP: GET /api/playlists/{id}
func (h *PlaylistHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.playlists.Get(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, playlistResponse{Playlist: p})
}

// HandleDelete removes a playlist and its items. Uploaded files stay.
//
// HTTP: DELETE /api/playlists/{id}
func (h *PlaylistHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.playlists.Delete(r.Context(), ownerID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

type containsResponse struct {
	PlaylistIDs []string `json:"playlistIds"`
}

// HandleContains lists the caller's playlists holding a video, so the
// client can mark "already saved" before offering to add it again.
//
// HTTP: GET /api/playlists/contains?videoId=xxx
func (h *PlaylistHandler) HandleContains(w http.ResponseWriter, r *http.Request) {
	ids, err := h.playlists.Containing(r.Context(), ownerID(r), r.URL.Query().Get("videoId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, containsResponse{PlaylistIDs: ids})
}

// HandleItems returns a playlist's items, filtered by title and sorted.
//
// HTTP: GET /api/playlists/{id}/items?q=road&sort=rating
func (h *PlaylistHandler) HandleItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.playlists.Items(r.Context(), ownerID(r), chi.URLParam(r, "id"), q.Get("q"), q.Get("sort"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{Items: items})
}

type addVideoRequest struct {
	VideoID      string `json:"videoId"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// HandleAddVideo saves a catalog video into a playlist.
//
// HTTP: POST /api/playlists/{id}/items
// BODY: {"videoId", "title", "thumbnailUrl"}
func (h *PlaylistHandler) HandleAddVideo(w http.ResponseWriter, r *http.Request) {
	var req addVideoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	item, err := h.playlists.AddVideo(r.Context(), ownerID(r), chi.URLParam(r, "id"), service.AddVideoInput{
		VideoID:      req.VideoID,
		Title:        req.Title,
		ThumbnailURL: req.ThumbnailURL,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, itemResponse{OK: true, Item: item})
}

type rateRequest struct {
	Rating json.RawMessage `json:"rating"`
}

// ratingText turns the raw "rating" value into the text ParseRating reads.
// A JSON string is unquoted ("4" → 4); anything else (number, null, bool)
// goes through as written and only numbers survive parsing.
func ratingText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// HandleRateVideo / HandleRateAudio set an item's rating (0..5).
//
// HTTP: PATCH /api/playlists/{id}/items/{videoId}
// HTTP: PATCH /api/playlists/{id}/audio/{mp3Id}
// BODY: {"rating": 4} or {"rating": "4"}
func (h *PlaylistHandler) HandleRateVideo(w http.ResponseWriter, r *http.Request) {
	h.rate(w, r, videoRef(r))
}

func (h *PlaylistHandler) HandleRateAudio(w http.ResponseWriter, r *http.Request) {
	h.rate(w, r, audioRef(r))
}

func (h *PlaylistHandler) rate(w http.ResponseWriter, r *http.Request, ref model.ItemRef) {
	var req rateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	err := h.playlists.SetRating(r.Context(), ownerID(r), chi.URLParam(r, "id"), ref, ratingText(req.Rating))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

// HandleRemoveVideo / HandleRemoveAudio drop an item from a playlist.
//
// HTTP: DELETE /api/playlists/{id}/items/{videoId}
// HTTP: DELETE /api/playlists/{id}/audio/{mp3Id}
func (h *PlaylistHandler) HandleRemoveVideo(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, videoRef(r))
}

func (h *PlaylistHandler) HandleRemoveAudio(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, audioRef(r))
}

func (h *PlaylistHandler) remove(w http.ResponseWriter, r *http.Request, ref model.ItemRef) {
	if err := h.playlists.RemoveItem(r.Context(), ownerID(r), chi.URLParam(r, "id"), ref); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func videoRef(r *http.Request) model.ItemRef {
	return model.ItemRef{Type: model.ItemVideo, ID: chi.URLParam(r, "videoId")}
}

func audioRef(r *http.Request) model.ItemRef {
	return model.ItemRef{Type: model.ItemAudio, ID: chi.URLParam(r, "mp3Id")}
}
