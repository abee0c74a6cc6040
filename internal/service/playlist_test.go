package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/moby/locker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/model"
)

const owner = "user-1"

func newTestPlaylistService() (*PlaylistService, *fakePlaylistRepo) {
	repo := newFakePlaylistRepo()
	return NewPlaylistService(repo, testLogger()), repo
}

func video(id string) AddVideoInput {
	return AddVideoInput{VideoID: id, Title: "Title " + id, ThumbnailURL: "https://img/" + id}
}

func videoRef(id string) model.ItemRef {
	return model.ItemRef{Type: model.ItemVideo, ID: id}
}

// =========================================================================
// Create / Delete
// =========================================================================

func TestPlaylistService_Create(t *testing.T) {
	svc, _ := newTestPlaylistService()
	ctx := context.Background()

	p, err := svc.Create(ctx, owner, "  Road Trip ")
	require.NoError(t, err)
	assert.Equal(t, "Road Trip", p.Name)
	assert.NotEmpty(t, p.ID)
	assert.NotNil(t, p.Items)

	_, err = svc.Create(ctx, owner, "road trip")
	wantCode(t, err, apperror.CodePlaylistNameExists)

	_, err = svc.Create(ctx, owner, "   ")
	wantCode(t, err, apperror.CodeMissingName)

	// Names are unique per owner only.
	_, err = svc.Create(ctx, "user-2", "Road Trip")
	assert.NoError(t, err)
}

func TestPlaylistService_Delete(t *testing.T) {
	svc, _ := newTestPlaylistService()
	ctx := context.Background()

	p, err := svc.Create(ctx, owner, "Mix")
	require.NoError(t, err)

	err = svc.Delete(ctx, "someone-else", p.ID)
	wantCode(t, err, apperror.CodePlaylistNotFound)

	require.NoError(t, svc.Delete(ctx, owner, p.ID))
	err = svc.Delete(ctx, owner, p.ID)
	wantCode(t, err, apperror.CodePlaylistNotFound)

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// =========================================================================
// Items
// =========================================================================

func TestPlaylistService_AddVideo(t *testing.T) {
	svc, _ := newTestPlaylistService()
	ctx := context.Background()
	p, _ := svc.Create(ctx, owner, "Mix")

	item, err := svc.AddVideo(ctx, owner, p.ID, video("dQw4w9WgXcQ"))
	require.NoError(t, err)
	assert.Equal(t, model.ItemVideo, item.Type)
	assert.Equal(t, 0, item.Rating)
	assert.False(t, item.AddedAt.IsZero())

	_, err = svc.AddVideo(ctx, owner, p.ID, video("dQw4w9WgXcQ"))
	wantCode(t, err, apperror.CodeAlreadyExists)

	_, err = svc.AddVideo(ctx, owner, "pl_missing", video("kJQP7kiw5Fk"))
	wantCode(t, err, apperror.CodePlaylistNotFound)

	for _, in := range []AddVideoInput{
		{Title: "t", ThumbnailURL: "u"},
		{VideoID: "v", ThumbnailURL: "u"},
		{VideoID: "v", Title: "t"},
	} {
		_, err = svc.AddVideo(ctx, owner, p.ID, in)
		wantCode(t, err, apperror.CodeMissingFields)
	}
}

func TestPlaylistService_SameVideoInTwoPlaylists(t *testing.T) {
	svc, _ := newTestPlaylistService()
	ctx := context.Background()
	a, _ := svc.Create(ctx, owner, "A")
	b, _ := svc.Create(ctx, owner, "B")

	_, err := svc.AddVideo(ctx, owner, a.ID, video("dQw4w9WgXcQ"))
	require.NoError(t, err)
	_, err = svc.AddVideo(ctx, owner, b.ID, video("dQw4w9WgXcQ"))
	require.NoError(t, err)

	ids, err := svc.Containing(ctx, owner, "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, ids)

	_, err = svc.Containing(ctx, owner, " ")
	wantCode(t, err, apperror.CodeMissingFields)
}

func TestPlaylistService_AddAudio(t *testing.T) {
	svc, _ := newTestPlaylistService()
	ctx := context.Background()
	p, _ := svc.Create(ctx, owner, "Mix")

	item, err := svc.AddAudio(ctx, owner, p.ID, "Demo tape", "/uploads/demo.mp3")
	require.NoError(t, err)
	assert.Equal(t, model.ItemAudio, item.Type)
	assert.True(t, strings.HasPrefix(item.Mp3ID, Mp3IDPrefix), "mp3Id = %q", item.Mp3ID)
	assert.Equal(t, "/uploads/demo.mp3", item.FileURL)

	// Every upload is distinct, even with the same title and file.
	other, err := svc.AddAudio(ctx, owner, p.ID, "Demo tape", "/uploads/demo.mp3")
	require.NoError(t, err)
	assert.NotEqual(t, item.Mp3ID, other.Mp3ID)
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"0", 0, true},
		{"5", 5, true},
		{"3", 3, true},
		{"3.0", 3, true},
		{" 4 ", 4, true},
		{"2e0", 2, true},
		{"2.5", 0, false},
		{"6", 0, false},
		{"-1", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseRating(tt.raw)
			if !tt.ok {
				wantCode(t, err, apperror.CodeInvalidRating)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlaylistService_SetRatingAndRemove(t *testing.T) {
	svc, _ := newTestPlaylistService()
	ctx := context.Background()
	p, _ := svc.Create(ctx, owner, "Mix")
	svc.AddVideo(ctx, owner, p.ID, video("dQw4w9WgXcQ"))

	require.NoError(t, svc.SetRating(ctx, owner, p.ID, videoRef("dQw4w9WgXcQ"), "4"))
	got, err := svc.Get(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Items[0].Rating)

	wantCode(t, svc.SetRating(ctx, owner, p.ID, videoRef("dQw4w9WgXcQ"), "9"), apperror.CodeInvalidRating)
	wantCode(t, svc.SetRating(ctx, owner, p.ID, videoRef("missing0000"), "1"), apperror.CodeItemNotFound)
	wantCode(t, svc.SetRating(ctx, owner, "pl_nope", videoRef("dQw4w9WgXcQ"), "1"), apperror.CodePlaylistNotFound)

	// A video ref never matches an audio item and vice versa.
	wantCode(t, svc.RemoveItem(ctx, owner, p.ID, model.ItemRef{Type: model.ItemAudio, ID: "dQw4w9WgXcQ"}), apperror.CodeItemNotFound)

	require.NoError(t, svc.RemoveItem(ctx, owner, p.ID, videoRef("dQw4w9WgXcQ")))
	wantCode(t, svc.RemoveItem(ctx, owner, p.ID, videoRef("dQw4w9WgXcQ")), apperror.CodeItemNotFound)
}

func TestPlaylistService_ConcurrentAddsAreSerialized(t *testing.T) {
	svc, _ := newTestPlaylistService()
	ctx := context.Background()
	p, _ := svc.Create(ctx, owner, "Mix")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddVideo(ctx, owner, p.ID, video("dQw4w9WgXcQ"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.CodeOf(err) == apperror.CodeAlreadyExists:
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 19, dup)
	assert.ErrorIs(t, svc.locks.Unlock(owner), locker.ErrNoSuchLock, "owner lock must be released")
}

// =========================================================================
// FilterItems
// =========================================================================

func TestFilterItems(t *testing.T) {
	items := []model.Item{
		{Type: model.ItemVideo, VideoID: "a", Title: "banana split", Rating: 3},
		{Type: model.ItemVideo, VideoID: "b", Title: "Apple pie", Rating: 5},
		{Type: model.ItemAudio, Mp3ID: "c", Title: "cherry BANANA", Rating: 3},
		{Type: model.ItemVideo, VideoID: "d", Title: "date", Rating: 4},
	}
	ids := func(items []model.Item) []string {
		out := []string{}
		for _, it := range items {
			out = append(out, it.Ref().ID)
		}
		return out
	}

	tests := []struct {
		name  string
		query string
		sort  string
		want  []string
	}{
		{"rating, ties keep insertion order", "", SortRating, []string{"b", "d", "a", "c"}},
		{"title ignores case", "", SortTitle, []string{"b", "a", "c", "d"}},
		{"filter then title", "an", SortTitle, []string{"a", "c"}},
		{"empty sort means title", "", "", []string{"b", "a", "c", "d"}},
		{"unknown sort means title", "", "bogus", []string{"b", "a", "c", "d"}},
		{"filter ignores case", "Banana", "", []string{"a", "c"}},
		{"no match", "kiwi", SortRating, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterItems(items, tt.query, tt.sort)))
		})
	}

	dupes := []model.Item{
		{Type: model.ItemVideo, VideoID: "x", Title: "Same"},
		{Type: model.ItemVideo, VideoID: "y", Title: "same"},
	}
	assert.Equal(t, []string{"x", "y"}, ids(FilterItems(dupes, "", "")))

	assert.NotNil(t, FilterItems(nil, "x", ""))
	// The input keeps its order.
	assert.Equal(t, "a", items[0].Ref().ID)
}

func TestPlaylistService_Items(t *testing.T) {
	svc, _ := newTestPlaylistService()
	ctx := context.Background()
	p, _ := svc.Create(ctx, owner, "Mix")
	svc.AddVideo(ctx, owner, p.ID, AddVideoInput{VideoID: "v1", Title: "Zebra", ThumbnailURL: "u"})
	svc.AddVideo(ctx, owner, p.ID, AddVideoInput{VideoID: "v2", Title: "aardvark", ThumbnailURL: "u"})

	items, err := svc.Items(ctx, owner, p.ID, "", SortTitle)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "aardvark", items[0].Title)

	_, err = svc.Items(ctx, owner, "pl_nope", "", "")
	wantCode(t, err, apperror.CodePlaylistNotFound)
}
