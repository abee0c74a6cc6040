package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/auth"
	"github.com/sakif/mixtape/internal/model"
	"github.com/sakif/mixtape/internal/repository"
	"github.com/sakif/mixtape/internal/storage"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================
//
// In-memory fakes of the repository interfaces. They return the same
// apperror codes as the SQLite implementation, so the services behave the
// same against either.

var (
	_ repository.UserRepository     = (*fakeUserRepo)(nil)
	_ repository.SessionRepository  = (*fakeSessionRepo)(nil)
	_ repository.PlaylistRepository = (*fakePlaylistRepo)(nil)
	_ storage.Store                 = (*fakeStore)(nil)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeUserRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.User
	nextID int
	// set to a non-nil error to simulate a database failure
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[string]*model.User)}
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.byID {
		if model.UsernameKey(u.Username) == model.UsernameKey(user.Username) {
			return apperror.Conflict(apperror.CodeUsernameExists, "username taken")
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	copied := *user
	f.byID[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) find(match func(*model.User) bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound(apperror.CodeUserNotFound, "user not found")
}

func (f *fakeUserRepo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return model.UsernameKey(u.Username) == model.UsernameKey(username) })
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id })
}

func (f *fakeUserRepo) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return f.find(func(u *model.User) bool { return githubID != 0 && u.GitHubID == githubID })
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	nextID   int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.Session)}
}

func (f *fakeSessionRepo) CreateSession(ctx context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = fmt.Sprintf("sess-%d", f.nextID)
	s.CreatedAt = time.Now()
	copied := *s
	f.sessions[s.ID] = &copied
	return nil
}

func (f *fakeSessionRepo) GetSession(ctx context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperror.NotFound(apperror.CodeUnauthorized, "session not found")
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionRepo) DeleteSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessionRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.Expired(now) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type fakePlaylistRepo struct {
	mu     sync.Mutex
	owners map[string][]*model.Playlist
	nextID int
	// addErr, when set, fails every AddItem.
	addErr error
}

func newFakePlaylistRepo() *fakePlaylistRepo {
	return &fakePlaylistRepo{owners: make(map[string][]*model.Playlist)}
}

func clonePlaylist(p *model.Playlist) model.Playlist {
	out := *p
	out.Items = append([]model.Item{}, p.Items...)
	return out
}

func (f *fakePlaylistRepo) get(ownerID, playlistID string) (*model.Playlist, error) {
	for _, p := range f.owners[ownerID] {
		if p.ID == playlistID {
			return p, nil
		}
	}
	return nil, apperror.NotFound(apperror.CodePlaylistNotFound, "playlist not found")
}

func (f *fakePlaylistRepo) ListPlaylists(ctx context.Context, ownerID string) ([]model.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Playlist{}
	for _, p := range f.owners[ownerID] {
		out = append(out, clonePlaylist(p))
	}
	return out, nil
}

func (f *fakePlaylistRepo) GetPlaylist(ctx context.Context, ownerID, playlistID string) (*model.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.get(ownerID, playlistID)
	if err != nil {
		return nil, err
	}
	out := clonePlaylist(p)
	return &out, nil
}

func (f *fakePlaylistRepo) CreatePlaylist(ctx context.Context, ownerID string, p *model.Playlist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.owners[ownerID] {
		if model.UsernameKey(existing.Name) == model.UsernameKey(p.Name) {
			return apperror.Conflict(apperror.CodePlaylistNameExists, "name taken")
		}
	}
	f.nextID++
	p.ID = fmt.Sprintf("pl_%d", f.nextID)
	p.CreatedAt = time.Now()
	p.Items = []model.Item{}
	copied := clonePlaylist(p)
	f.owners[ownerID] = append(f.owners[ownerID], &copied)
	return nil
}

func (f *fakePlaylistRepo) DeletePlaylist(ctx context.Context, ownerID, playlistID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.owners[ownerID]
	for i, p := range list {
		if p.ID == playlistID {
			f.owners[ownerID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return apperror.NotFound(apperror.CodePlaylistNotFound, "playlist not found")
}

func (f *fakePlaylistRepo) AddItem(ctx context.Context, ownerID, playlistID string, item *model.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	p, err := f.get(ownerID, playlistID)
	if err != nil {
		return err
	}
	if p.Find(item.Ref()) >= 0 {
		return apperror.Conflict(apperror.CodeAlreadyExists, "already there")
	}
	item.AddedAt = time.Now()
	p.Items = append(p.Items, *item)
	return nil
}

func (f *fakePlaylistRepo) SetRating(ctx context.Context, ownerID, playlistID string, ref model.ItemRef, rating int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.get(ownerID, playlistID)
	if err != nil {
		return err
	}
	i := p.Find(ref)
	if i < 0 {
		return apperror.NotFound(apperror.CodeItemNotFound, "item not found")
	}
	p.Items[i].Rating = rating
	return nil
}

func (f *fakePlaylistRepo) RemoveItem(ctx context.Context, ownerID, playlistID string, ref model.ItemRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.get(ownerID, playlistID)
	if err != nil {
		return err
	}
	i := p.Find(ref)
	if i < 0 {
		return apperror.NotFound(apperror.CodeItemNotFound, "item not found")
	}
	p.Items = append(p.Items[:i], p.Items[i+1:]...)
	return nil
}

func (f *fakePlaylistRepo) PlaylistsContaining(ctx context.Context, ownerID, videoID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []string{}
	for _, p := range f.owners[ownerID] {
		if p.Find(model.ItemRef{Type: model.ItemVideo, ID: videoID}) >= 0 {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

// fakeStore keeps uploads in memory.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = data
	return nil
}

func (f *fakeStore) Open(ctx context.Context, name string) (*storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{
		ReadSeekCloser: nopSeekCloser{bytes.NewReader(data)},
		Name:           name,
		Size:           int64(len(data)),
	}, nil
}

func (f *fakeStore) Remove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, name)
	return nil
}

func (f *fakeStore) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type nopSeekCloser struct{ *bytes.Reader }

func (nopSeekCloser) Close() error { return nil }

// newTestAuthService returns an AuthService wired with fakes.
// Cost 4 is the bcrypt minimum, which keeps the tests fast.
func newTestAuthService(t *testing.T) (*AuthService, *fakeUserRepo, *fakeSessionRepo) {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	users, sessions := newFakeUserRepo(), newFakeSessionRepo()
	return NewAuthService(users, sessions, ts, auth.NewPasswordServiceForTest(4), testLogger()), users, sessions
}

// wantCode fails the test unless err carries the given apperror code.
func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", code)
	}
	if got := apperror.CodeOf(err); got != code {
		t.Fatalf("error code = %q, want %q (err: %v)", got, code, err)
	}
}

var errDatabaseOnFire = errors.New("database is on fire")
