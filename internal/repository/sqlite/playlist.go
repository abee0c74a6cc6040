package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/model"
	"github.com/sakif/mixtape/internal/repository"
)

var _ repository.PlaylistRepository = (*DB)(nil)

// PlaylistIDPrefix starts every playlist ID. xid already embeds a timestamp
// and a random part, so IDs sort roughly by creation time.
const PlaylistIDPrefix = "pl_"

const itemColumns = `kind, ref, title, thumbnail_url, file_url, rating, added_at`

// ListPlaylists returns every playlist of the owner in creation order,
// each with its items in insertion order.
//
// TWO QUERIES, NOT N+1:
// One query for the playlists, one for all of their items, stitched together
// in Go. Looping over playlists and querying items per playlist would cost
// one round trip per playlist.
func (db *DB) ListPlaylists(ctx context.Context, ownerID string) ([]model.Playlist, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, created_at FROM playlists
		 WHERE owner_id = ? ORDER BY created_at, rowid`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing playlists of %s: %w", ownerID, err)
	}
	defer rows.Close()

	playlists := []model.Playlist{}
	index := map[string]int{}
	for rows.Next() {
		var (
			p         model.Playlist
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning playlist: %w", err)
		}
		p.CreatedAt = fromMillis(createdAt)
		p.Items = []model.Item{}
		index[p.ID] = len(playlists)
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating playlists: %w", err)
	}
	if len(playlists) == 0 {
		return playlists, nil
	}

	itemRows, err := db.conn.QueryContext(ctx,
		`SELECT i.playlist_id, `+prefixed("i.", itemColumns)+`
		 FROM items i JOIN playlists p ON p.id = i.playlist_id
		 WHERE p.owner_id = ? ORDER BY i.id`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing items of %s: %w", ownerID, err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var playlistID string
		item, err := scanItem(itemRows, &playlistID)
		if err != nil {
			return nil, err
		}
		if i, ok := index[playlistID]; ok {
			playlists[i].Items = append(playlists[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating items: %w", err)
	}

	return playlists, nil
}

// GetPlaylist returns one playlist with its items.
// A playlist owned by someone else is reported as not found.
func (db *DB) GetPlaylist(ctx context.Context, ownerID, playlistID string) (*model.Playlist, error) {
	var (
		p         model.Playlist
		createdAt int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM playlists WHERE id = ? AND owner_id = ?`,
		playlistID, ownerID,
	).Scan(&p.ID, &p.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, playlistNotFound(playlistID)
		}
		return nil, fmt.Errorf("sqlite: getting playlist %s: %w", playlistID, err)
	}
	p.CreatedAt = fromMillis(createdAt)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE playlist_id = ? ORDER BY id`, playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing items of playlist %s: %w", playlistID, err)
	}
	defer rows.Close()

	p.Items = []model.Item{}
	for rows.Next() {
		item, err := scanItem(rows, nil)
		if err != nil {
			return nil, err
		}
		p.Items = append(p.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating items: %w", err)
	}

	return &p, nil
}

// CreatePlaylist inserts a new empty playlist. An empty ID gets a fresh
// PlaylistIDPrefix one; a preset ID (imported data) is kept as given.
func (db *DB) CreatePlaylist(ctx context.Context, ownerID string, p *model.Playlist) error {
	if p.ID == "" {
		p.ID = PlaylistIDPrefix + xid.New().String()
	}
	p.CreatedAt = db.stampOr(p.CreatedAt)
	p.Items = []model.Item{}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO playlists (id, owner_id, name, name_key, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID,
		ownerID,
		p.Name,
		nameKey(p.Name),
		toMillis(p.CreatedAt),
	)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return apperror.Conflict(apperror.CodePlaylistIDExists,
				fmt.Sprintf("playlist id %s is already taken", p.ID))
		}
		if isUniqueViolation(err) {
			return apperror.Conflict(apperror.CodePlaylistNameExists,
				fmt.Sprintf("a playlist named %q already exists", p.Name))
		}
		return fmt.Errorf("sqlite: inserting playlist %q: %w", p.Name, err)
	}
	return nil
}

// DeletePlaylist removes a playlist. Its items go with it (ON DELETE CASCADE).
func (db *DB) DeletePlaylist(ctx context.Context, ownerID, playlistID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM playlists WHERE id = ? AND owner_id = ?`, playlistID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting playlist %s: %w", playlistID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return playlistNotFound(playlistID)
	}
	return nil
}

// AddItem appends an item to a playlist. A zero item.AddedAt is set to now.
//
// The ownership check and the insert share one transaction, so a playlist
// deleted by a concurrent request cannot end up with an orphan item.
func (db *DB) AddItem(ctx context.Context, ownerID, playlistID string, item *model.Item) error {
	ref := item.Ref()
	if !ref.Type.Valid() || ref.ID == "" {
		return fmt.Errorf("sqlite: adding item: invalid reference %+v", ref)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensurePlaylist(ctx, tx, ownerID, playlistID); err != nil {
			return err
		}

		item.AddedAt = db.stampOr(item.AddedAt)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO items (playlist_id, kind, ref, title, thumbnail_url, file_url, rating, added_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			playlistID,
			string(ref.Type),
			ref.ID,
			item.Title,
			item.ThumbnailURL,
			item.FileURL,
			item.Rating,
			toMillis(item.AddedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict(apperror.CodeAlreadyExists, "item is already in this playlist")
			}
			return fmt.Errorf("sqlite: inserting item into %s: %w", playlistID, err)
		}
		return nil
	})
}

// SetRating updates one item's rating. The range check lives in the
// service; the CHECK constraint on the column is the backstop.
func (db *DB) SetRating(ctx context.Context, ownerID, playlistID string, ref model.ItemRef, rating int) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensurePlaylist(ctx, tx, ownerID, playlistID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE items SET rating = ? WHERE playlist_id = ? AND kind = ? AND ref = ?`,
			rating, playlistID, string(ref.Type), ref.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: rating item %s in %s: %w", ref.ID, playlistID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return itemNotFound(ref)
		}
		return nil
	})
}

func (db *DB) RemoveItem(ctx context.Context, ownerID, playlistID string, ref model.ItemRef) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensurePlaylist(ctx, tx, ownerID, playlistID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM items WHERE playlist_id = ? AND kind = ? AND ref = ?`,
			playlistID, string(ref.Type), ref.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: removing item %s from %s: %w", ref.ID, playlistID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return itemNotFound(ref)
		}
		return nil
	})
}

// PlaylistsContaining returns the IDs of the owner's playlists that hold
// the video, in playlist creation order.
func (db *DB) PlaylistsContaining(ctx context.Context, ownerID, videoID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT p.id FROM playlists p JOIN items i ON i.playlist_id = p.id
		 WHERE p.owner_id = ? AND i.kind = ? AND i.ref = ?
		 ORDER BY p.created_at, p.rowid`,
		ownerID, string(model.ItemVideo), videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding playlists with video %s: %w", videoID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning playlist id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func ensurePlaylist(ctx context.Context, tx *sql.Tx, ownerID, playlistID string) error {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM playlists WHERE id = ? AND owner_id = ?`, playlistID, ownerID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return playlistNotFound(playlistID)
		}
		return fmt.Errorf("sqlite: checking playlist %s: %w", playlistID, err)
	}
	return nil
}

// scanItem reads one items row. When playlistID is non-nil the row is
// expected to start with the playlist_id column.
func scanItem(rows *sql.Rows, playlistID *string) (model.Item, error) {
	var (
		item    model.Item
		kind    string
		ref     string
		addedAt int64
	)

	dest := []any{&kind, &ref, &item.Title, &item.ThumbnailURL, &item.FileURL, &item.Rating, &addedAt}
	if playlistID != nil {
		dest = append([]any{playlistID}, dest...)
	}
	if err := rows.Scan(dest...); err != nil {
		return model.Item{}, fmt.Errorf("sqlite: scanning item: %w", err)
	}

	item.Type = model.ItemType(kind)
	if item.Type == model.ItemAudio {
		item.Mp3ID = ref
	} else {
		item.VideoID = ref
	}
	item.AddedAt = fromMillis(addedAt)
	return item, nil
}

func playlistNotFound(id string) error {
	return apperror.NotFound(apperror.CodePlaylistNotFound, "playlist not found: "+id)
}

func itemNotFound(ref model.ItemRef) error {
	return apperror.NotFound(apperror.CodeItemNotFound,
		fmt.Sprintf("%s item not found: %s", ref.Type, ref.ID))
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
