package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/model"
)

func createTestPlaylist(t *testing.T, db *DB, ownerID, name string) *model.Playlist {
	t.Helper()
	p := &model.Playlist{Name: name}
	if err := db.CreatePlaylist(context.Background(), ownerID, p); err != nil {
		t.Fatalf("failed to create test playlist: %v", err)
	}
	return p
}

func addTestVideo(t *testing.T, db *DB, ownerID, playlistID, videoID string) *model.Item {
	t.Helper()
	item := &model.Item{
		Type:         model.ItemVideo,
		VideoID:      videoID,
		Title:        "Video " + videoID,
		ThumbnailURL: "https://i.ytimg.com/vi/" + videoID + "/mqdefault.jpg",
	}
	if err := db.AddItem(context.Background(), ownerID, playlistID, item); err != nil {
		t.Fatalf("failed to add test video: %v", err)
	}
	return item
}

func wantCode(t *testing.T, err error, kind error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", code)
	}
	if !errors.Is(err, kind) {
		t.Errorf("error = %v, want kind %v", err, kind)
	}
	if got := apperror.CodeOf(err); got != code {
		t.Errorf("code = %q, want %q", got, code)
	}
}

// =========================================================================
// PLAYLIST CRUD
// =========================================================================

func TestCreatePlaylist(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "erin")

	p := createTestPlaylist(t, db, owner.ID, "Road Trip")

	if !strings.HasPrefix(p.ID, PlaylistIDPrefix) {
		t.Errorf("ID = %q, want prefix %q", p.ID, PlaylistIDPrefix)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if p.Items == nil || len(p.Items) != 0 {
		t.Errorf("Items = %#v, want empty non-nil slice", p.Items)
	}
}

func TestCreatePlaylist_DuplicateNameIgnoresCase(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "erin")
	createTestPlaylist(t, db, owner.ID, "Road Trip")

	err := db.CreatePlaylist(context.Background(), owner.ID, &model.Playlist{Name: "road trip"})
	wantCode(t, err, apperror.ErrConflict, apperror.CodePlaylistNameExists)
}

func TestCreatePlaylist_PresetID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	erin := createTestUser(t, db, "erin")
	finn := createTestUser(t, db, "finn")

	p := &model.Playlist{ID: "pl_1700000000000_ab12", Name: "Imported"}
	if err := db.CreatePlaylist(ctx, erin.ID, p); err != nil {
		t.Fatalf("CreatePlaylist() error = %v", err)
	}
	if p.ID != "pl_1700000000000_ab12" {
		t.Errorf("ID = %q, preset ID must be kept", p.ID)
	}
	if _, err := db.GetPlaylist(ctx, erin.ID, "pl_1700000000000_ab12"); err != nil {
		t.Fatalf("GetPlaylist(preset id) error = %v", err)
	}

	// The ID is global: another owner cannot reuse it even with a new name.
	err := db.CreatePlaylist(ctx, finn.ID, &model.Playlist{ID: "pl_1700000000000_ab12", Name: "Other"})
	wantCode(t, err, apperror.ErrConflict, apperror.CodePlaylistIDExists)

	// A name clash with a fresh ID still reports the name.
	err = db.CreatePlaylist(ctx, erin.ID, &model.Playlist{ID: "pl_new", Name: "imported"})
	wantCode(t, err, apperror.ErrConflict, apperror.CodePlaylistNameExists)
}

func TestCreatePlaylist_SameNameDifferentOwners(t *testing.T) {
	db := newTestDB(t)
	a := createTestUser(t, db, "a")
	b := createTestUser(t, db, "b")

	createTestPlaylist(t, db, a.ID, "Favourites")
	createTestPlaylist(t, db, b.ID, "Favourites")
}

func TestListPlaylists_OrderAndIsolation(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "frank")
	other := createTestUser(t, db, "grace")

	first := createTestPlaylist(t, db, owner.ID, "First")
	second := createTestPlaylist(t, db, owner.ID, "Second")
	createTestPlaylist(t, db, other.ID, "Not Mine")

	addTestVideo(t, db, owner.ID, second.ID, "vid-b")
	addTestVideo(t, db, owner.ID, first.ID, "vid-a")
	addTestVideo(t, db, owner.ID, second.ID, "vid-c")

	got, err := db.ListPlaylists(context.Background(), owner.ID)
	if err != nil {
		t.Fatalf("ListPlaylists() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != second.ID {
		t.Errorf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, first.ID, second.ID)
	}
	if len(got[0].Items) != 1 || got[0].Items[0].VideoID != "vid-a" {
		t.Errorf("first items = %+v", got[0].Items)
	}
	if len(got[1].Items) != 2 || got[1].Items[0].VideoID != "vid-b" || got[1].Items[1].VideoID != "vid-c" {
		t.Errorf("second items = %+v, want vid-b then vid-c", got[1].Items)
	}
}

func TestListPlaylists_Empty(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "henry")

	got, err := db.ListPlaylists(context.Background(), owner.ID)
	if err != nil {
		t.Fatalf("ListPlaylists() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %#v, want empty non-nil slice", got)
	}
}

func TestGetPlaylist_OtherOwnerIsNotFound(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "ivy")
	intruder := createTestUser(t, db, "jack")
	p := createTestPlaylist(t, db, owner.ID, "Private")

	_, err := db.GetPlaylist(context.Background(), intruder.ID, p.ID)
	wantCode(t, err, apperror.ErrNotFound, apperror.CodePlaylistNotFound)
}

func TestDeletePlaylist_CascadesItems(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "kate")
	p := createTestPlaylist(t, db, owner.ID, "Doomed")
	addTestVideo(t, db, owner.ID, p.ID, "v1")
	addTestVideo(t, db, owner.ID, p.ID, "v2")

	if err := db.DeletePlaylist(context.Background(), owner.ID, p.ID); err != nil {
		t.Fatalf("DeletePlaylist() error = %v", err)
	}

	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM items WHERE playlist_id = ?`, p.ID).Scan(&count); err != nil {
		t.Fatalf("counting items: %v", err)
	}
	if count != 0 {
		t.Errorf("%d items survived the playlist delete", count)
	}

	// Subsequent item operations on the deleted playlist fail with not found.
	err := db.SetRating(context.Background(), owner.ID, p.ID, model.ItemRef{Type: model.ItemVideo, ID: "v1"}, 3)
	wantCode(t, err, apperror.ErrNotFound, apperror.CodePlaylistNotFound)

	err = db.DeletePlaylist(context.Background(), owner.ID, p.ID)
	wantCode(t, err, apperror.ErrNotFound, apperror.CodePlaylistNotFound)
}

// =========================================================================
// ITEMS
// =========================================================================

func TestAddItem_RoundTripsBothTypes(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "liam")
	p := createTestPlaylist(t, db, owner.ID, "Mixed")

	video := addTestVideo(t, db, owner.ID, p.ID, "dQw4w9WgXcQ")
	audio := &model.Item{
		Type:    model.ItemAudio,
		Mp3ID:   "mp3_abc",
		Title:   "demo.mp3",
		FileURL: "/uploads/demo_1.mp3",
	}
	if err := db.AddItem(context.Background(), owner.ID, p.ID, audio); err != nil {
		t.Fatalf("AddItem(audio) error = %v", err)
	}

	got, err := db.GetPlaylist(context.Background(), owner.ID, p.ID)
	if err != nil {
		t.Fatalf("GetPlaylist() error = %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(got.Items))
	}

	v := got.Items[0]
	if v.Type != model.ItemVideo || v.VideoID != video.VideoID || v.ThumbnailURL != video.ThumbnailURL {
		t.Errorf("video item = %+v", v)
	}
	if v.Rating != 0 {
		t.Errorf("new video rating = %d, want 0", v.Rating)
	}
	if !v.AddedAt.Equal(video.AddedAt) {
		t.Errorf("AddedAt = %v, want %v", v.AddedAt, video.AddedAt)
	}

	a := got.Items[1]
	if a.Type != model.ItemAudio || a.Mp3ID != "mp3_abc" || a.FileURL != "/uploads/demo_1.mp3" || a.VideoID != "" {
		t.Errorf("audio item = %+v", a)
	}
}

func TestAddItem_DuplicateVideoInSamePlaylist(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "mia")
	p := createTestPlaylist(t, db, owner.ID, "One")
	addTestVideo(t, db, owner.ID, p.ID, "dup")

	err := db.AddItem(context.Background(), owner.ID, p.ID, &model.Item{Type: model.ItemVideo, VideoID: "dup", Title: "again"})
	wantCode(t, err, apperror.ErrConflict, apperror.CodeAlreadyExists)
}

func TestAddItem_SameVideoInTwoPlaylists(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "noah")
	a := createTestPlaylist(t, db, owner.ID, "A")
	b := createTestPlaylist(t, db, owner.ID, "B")

	addTestVideo(t, db, owner.ID, a.ID, "shared")
	addTestVideo(t, db, owner.ID, b.ID, "shared")

	ids, err := db.PlaylistsContaining(context.Background(), owner.ID, "shared")
	if err != nil {
		t.Fatalf("PlaylistsContaining() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
		t.Errorf("ids = %v, want [%s %s]", ids, a.ID, b.ID)
	}

	none, err := db.PlaylistsContaining(context.Background(), owner.ID, "missing")
	if err != nil {
		t.Fatalf("PlaylistsContaining(missing) error = %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("missing video: got %#v, want empty slice", none)
	}
}

func TestAddItem_UnknownPlaylist(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "olga")

	err := db.AddItem(context.Background(), owner.ID, "pl_nope", &model.Item{Type: model.ItemVideo, VideoID: "x"})
	wantCode(t, err, apperror.ErrNotFound, apperror.CodePlaylistNotFound)
}

func TestSetRating(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "pete")
	p := createTestPlaylist(t, db, owner.ID, "Rated")
	addTestVideo(t, db, owner.ID, p.ID, "r1")

	ref := model.ItemRef{Type: model.ItemVideo, ID: "r1"}
	if err := db.SetRating(context.Background(), owner.ID, p.ID, ref, 4); err != nil {
		t.Fatalf("SetRating() error = %v", err)
	}

	got, err := db.GetPlaylist(context.Background(), owner.ID, p.ID)
	if err != nil {
		t.Fatalf("GetPlaylist() error = %v", err)
	}
	if got.Items[0].Rating != 4 {
		t.Errorf("rating = %d, want 4", got.Items[0].Rating)
	}

	// The same id under the other type tag is a different item.
	err = db.SetRating(context.Background(), owner.ID, p.ID, model.ItemRef{Type: model.ItemAudio, ID: "r1"}, 2)
	wantCode(t, err, apperror.ErrNotFound, apperror.CodeItemNotFound)
}

func TestRemoveItem(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "quinn")
	p := createTestPlaylist(t, db, owner.ID, "Shrinking")
	addTestVideo(t, db, owner.ID, p.ID, "keep")
	addTestVideo(t, db, owner.ID, p.ID, "drop")

	ref := model.ItemRef{Type: model.ItemVideo, ID: "drop"}
	if err := db.RemoveItem(context.Background(), owner.ID, p.ID, ref); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}

	err := db.RemoveItem(context.Background(), owner.ID, p.ID, ref)
	wantCode(t, err, apperror.ErrNotFound, apperror.CodeItemNotFound)

	got, err := db.GetPlaylist(context.Background(), owner.ID, p.ID)
	if err != nil {
		t.Fatalf("GetPlaylist() error = %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].VideoID != "keep" {
		t.Errorf("items = %+v, want only keep", got.Items)
	}
}

func TestPresetTimestampsArePreserved(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "legacy")
	ctx := context.Background()

	created := time.UnixMilli(1700000000123).UTC()
	added := time.UnixMilli(1700000500456).UTC()

	p := &model.Playlist{Name: "Old Mix", CreatedAt: created}
	if err := db.CreatePlaylist(ctx, owner.ID, p); err != nil {
		t.Fatalf("CreatePlaylist: %v", err)
	}
	item := &model.Item{Type: model.ItemVideo, VideoID: "dQw4w9WgXcQ", Title: "x", AddedAt: added}
	if err := db.AddItem(ctx, owner.ID, p.ID, item); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	got, err := db.GetPlaylist(ctx, owner.ID, p.ID)
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if !got.Items[0].AddedAt.Equal(added) {
		t.Errorf("AddedAt = %v, want %v", got.Items[0].AddedAt, added)
	}
}
