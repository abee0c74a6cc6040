package legacy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/auth"
	"github.com/sakif/mixtape/internal/metrics"
	"github.com/sakif/mixtape/internal/model"
	"github.com/sakif/mixtape/internal/repository"
)

// legacyIDPrefix starts every playlist ID the old server generated.
const legacyIDPrefix = "pl_"

// File names inside the old data directory.
const (
	UsersFile     = "users.json"
	PlaylistsFile = "playlists.json"
)

// Report counts what an import did.
type Report struct {
	UsersImported     int
	UsersExisting     int
	UsersSkipped      int
	PlaylistsImported int

	// PlaylistsRenumbered counts imported playlists whose old ID was
	// missing, malformed or already taken and got a fresh one.
	PlaylistsRenumbered int
	PlaylistsSkipped    int
	ItemsImported       int
	ItemsSkipped        int
}

// Importer writes legacy records through the repositories.
//
// It is safe to run twice: existing usernames are reused instead of created,
// playlists whose name the owner already has are skipped, and so are items
// already in their playlist.
type Importer struct {
	users     repository.UserRepository
	playlists repository.PlaylistRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewImporter(
	users repository.UserRepository,
	playlists repository.PlaylistRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *Importer {
	return &Importer{users: users, playlists: playlists, passwords: passwords, logger: logger}
}

// ImportDir reads UsersFile and PlaylistsFile from dir and imports them.
// Malformed files are logged and treated as empty.
func (im *Importer) ImportDir(ctx context.Context, dir string) (*Report, error) {
	users, err := ReadUsers(filepath.Join(dir, UsersFile))
	if err != nil {
		if !errors.Is(err, ErrMalformed) {
			return nil, err
		}
		im.logger.Warn("ignoring users file", slog.String("error", err.Error()))
	}

	playlists, err := ReadPlaylists(filepath.Join(dir, PlaylistsFile))
	if err != nil {
		if !errors.Is(err, ErrMalformed) {
			return nil, err
		}
		im.logger.Warn("ignoring playlists file", slog.String("error", err.Error()))
	}

	return im.Import(ctx, users, playlists)
}

// Import creates the users, then the playlists of every known user.
func (im *Importer) Import(ctx context.Context, users []User, playlists map[string][]Playlist) (*Report, error) {
	report := &Report{}

	// usernameKey → user ID
	owners := map[string]string{}

	for _, u := range users {
		id, err := im.importUser(ctx, u, report)
		if err != nil {
			return report, err
		}
		if id != "" {
			owners[model.UsernameKey(u.Username)] = id
		}
	}

	// Sorted so that when two owners claim the same legacy playlist ID the
	// same one keeps it on every run.
	for _, username := range slices.Sorted(maps.Keys(playlists)) {
		list := playlists[username]
		ownerID, ok := owners[model.UsernameKey(username)]
		if !ok {
			// Playlists of a user missing from users.json may still belong
			// to an account created by an earlier run.
			existing, err := im.users.GetUserByUsername(ctx, username)
			if err != nil {
				if !errors.Is(err, apperror.ErrNotFound) {
					return report, fmt.Errorf("legacy: looking up %q: %w", username, err)
				}
				im.logger.Warn("playlists of unknown user skipped",
					slog.String("username", username),
					slog.Int("playlists", len(list)),
				)
				report.PlaylistsSkipped += len(list)
				continue
			}
			ownerID = existing.ID
		}

		for _, p := range list {
			if err := im.importPlaylist(ctx, ownerID, p, report); err != nil {
				return report, err
			}
		}
	}

	im.logger.Info("legacy import finished",
		slog.Int("usersImported", report.UsersImported),
		slog.Int("usersExisting", report.UsersExisting),
		slog.Int("usersSkipped", report.UsersSkipped),
		slog.Int("playlistsImported", report.PlaylistsImported),
		slog.Int("playlistsRenumbered", report.PlaylistsRenumbered),
		slog.Int("playlistsSkipped", report.PlaylistsSkipped),
		slog.Int("itemsImported", report.ItemsImported),
		slog.Int("itemsSkipped", report.ItemsSkipped),
	)
	return report, nil
}

// importUser returns the ID of the created or already existing account,
// or "" when the record was skipped.
func (im *Importer) importUser(ctx context.Context, u User, report *Report) (string, error) {
	username := strings.TrimSpace(u.Username)
	if username == "" || u.Password == "" {
		im.logger.Warn("user without username or password skipped", slog.String("username", username))
		report.UsersSkipped++
		return "", nil
	}

	existing, err := im.users.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		report.UsersExisting++
		return existing.ID, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return "", fmt.Errorf("legacy: looking up %q: %w", username, err)
	}

	// Old accounts predate the strength rule, so only bcrypt's own limit applies.
	hash, err := im.passwords.Hash(u.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			im.logger.Warn("user with over-long password skipped", slog.String("username", username))
			report.UsersSkipped++
			return "", nil
		}
		return "", fmt.Errorf("legacy: hashing password of %q: %w", username, err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(u.FirstName),
		ImageURL:     strings.TrimSpace(u.ImageURL),
		CreatedAt:    u.CreatedAt.Time(),
	}
	if err := im.users.CreateUser(ctx, user); err != nil {
		// Two records in users.json that differ only in case.
		if errors.Is(err, apperror.ErrConflict) {
			report.UsersSkipped++
			return "", nil
		}
		return "", fmt.Errorf("legacy: creating %q: %w", username, err)
	}

	metrics.UsersRegistered.WithLabelValues("import").Inc()
	report.UsersImported++
	return user.ID, nil
}

func (im *Importer) importPlaylist(ctx context.Context, ownerID string, p Playlist, report *Report) error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		report.PlaylistsSkipped++
		report.ItemsSkipped += len(p.Items)
		return nil
	}

	// Old links and bookmarks carry the playlist ID, so keep it when possible.
	oldID := strings.TrimSpace(p.ID)
	if !keepableID(oldID) {
		oldID = ""
	}
	playlist := &model.Playlist{ID: oldID, Name: name, CreatedAt: p.CreatedAt.Time()}
	err := im.playlists.CreatePlaylist(ctx, ownerID, playlist)
	if apperror.CodeOf(err) == apperror.CodePlaylistIDExists {
		im.logger.Warn("playlist id already taken, assigning a new one",
			slog.String("id", oldID), slog.String("name", name))
		playlist.ID = ""
		oldID = ""
		err = im.playlists.CreatePlaylist(ctx, ownerID, playlist)
	}
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			report.PlaylistsSkipped++
			report.ItemsSkipped += len(p.Items)
			return nil
		}
		return fmt.Errorf("legacy: creating playlist %q: %w", name, err)
	}
	report.PlaylistsImported++
	if oldID == "" {
		report.PlaylistsRenumbered++
	}

	for _, raw := range p.Items {
		item, ok := raw.Normalize()
		if !ok {
			report.ItemsSkipped++
			continue
		}
		if err := im.playlists.AddItem(ctx, ownerID, playlist.ID, &item); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				report.ItemsSkipped++
				continue
			}
			return fmt.Errorf("legacy: adding %s to %q: %w", item.Ref().ID, name, err)
		}
		report.ItemsImported++
	}
	return nil
}

// keepableID reports whether a legacy playlist ID can be reused as is: it
// has the playlist prefix and needs no escaping inside a URL path.
func keepableID(id string) bool {
	return len(id) > len(legacyIDPrefix) &&
		strings.HasPrefix(id, legacyIDPrefix) &&
		url.PathEscape(id) == id
}
