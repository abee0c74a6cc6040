// Package repository declares the storage interfaces the service layer needs.
//
// The services depend on these interfaces, never on the sqlite package, so
// tests can swap in in-memory fakes and the storage engine can change without
// touching business rules.
//
// ERROR CONTRACT:
// Implementations return *apperror.AppError values for expected outcomes
// (not found, uniqueness conflicts) and wrapped plain errors for everything else.
package repository

import (
	"context"
	"time"

	"github.com/sakif/mixtape/internal/model"
)

type UserRepository interface {
	// CreateUser inserts a user and fills in ID, and CreatedAt when it is zero.
	// Returns a conflict with code username_exists when the normalized username is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	// DeleteExpiredSessions removes every session that expired before now
	// and returns how many rows went away.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type PlaylistRepository interface {
	ListPlaylists(ctx context.Context, ownerID string) ([]model.Playlist, error)
	GetPlaylist(ctx context.Context, ownerID, playlistID string) (*model.Playlist, error)
	// CreatePlaylist fills in ID and CreatedAt when they are zero. Returns a conflict with code
	// playlist_name_exists when the owner already has that name (case-insensitive), or
	// playlist_id_exists when a preset ID belongs to another playlist.
	CreatePlaylist(ctx context.Context, ownerID string, playlist *model.Playlist) error
	DeletePlaylist(ctx context.Context, ownerID, playlistID string) error

	// AddItem appends item to the playlist, stamping a zero AddedAt. Returns a conflict with code
	// already_exists when an item with the same reference is already there.
	AddItem(ctx context.Context, ownerID, playlistID string, item *model.Item) error
	SetRating(ctx context.Context, ownerID, playlistID string, ref model.ItemRef, rating int) error
	RemoveItem(ctx context.Context, ownerID, playlistID string, ref model.ItemRef) error

	// PlaylistsContaining lists the IDs of the owner's playlists holding videoID.
	PlaylistsContaining(ctx context.Context, ownerID, videoID string) ([]string, error)
}
