// Package legacy reads the JSON files of the first version of the app
// (data/users.json and data/playlists.json) and imports them into the
// database.
//
// FILE SHAPES:
//
//	users.json      [{username, password, firstName, imageUrl, createdAt}, ...]
//	playlists.json  {"<username>": [{id, name, createdAt, videos: [item, ...]}, ...]}
//
// The files were written by hand-rolled code over several releases, so the
// reader is forgiving: a missing, empty or malformed file reads as empty, a
// malformed entry is skipped, an item without "type" is a video, and a
// rating that is not a number reads as 0.
package legacy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/mixtape/internal/model"
)

// ErrMalformed is returned (together with an empty result) when a file
// exists but is not the JSON shape expected.
var ErrMalformed = errors.New("legacy: malformed file")

type User struct {
	Username  string `json:"username"`
	Password  string `json:"password"` // plaintext in the old files
	FirstName string `json:"firstName"`
	ImageURL  string `json:"imageUrl"`
	CreatedAt Millis `json:"createdAt"`
}

type Playlist struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt Millis `json:"createdAt"`
	Items     []Item `json:"-"`
}

type Item struct {
	Type         string `json:"type"`
	VideoID      string `json:"videoId"`
	Mp3ID        string `json:"mp3Id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailUrl"`
	FileURL      string `json:"fileUrl"`
	Rating       Rating `json:"rating"`
	AddedAt      Millis `json:"addedAt"`
}

// Millis is an epoch-millisecond timestamp, written as a number or a
// numeric string. Anything else reads as zero.
type Millis int64

func (m *Millis) UnmarshalJSON(b []byte) error {
	*m = Millis(looseNumber(b))
	return nil
}

// Time converts m, with zero meaning "unknown".
func (m Millis) Time() time.Time {
	if m <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m)).UTC()
}

// Rating is an item rating as the old files stored it: a number, a numeric
// string, or junk. It is rounded and clamped into the current range.
type Rating int

func (r *Rating) UnmarshalJSON(b []byte) error {
	f := looseNumber(b)
	f = math.Round(f)
	f = math.Max(model.MinRating, math.Min(model.MaxRating, f))
	*r = Rating(f)
	return nil
}

// looseNumber reads a JSON value the way the old server's Number(x) || 0
// did: numbers and numeric strings count, true is 1, everything else is 0.
func looseNumber(b []byte) float64 {
	b = bytes.TrimSpace(b)

	var f float64
	switch {
	case len(b) == 0:
		return 0
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = v
	case string(b) == "true":
		return 1
	default:
		if err := json.Unmarshal(b, &f); err != nil {
			return 0
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ReadUsers reads users.json. A missing or blank file gives an empty list
// and no error; a malformed one gives an empty list and ErrMalformed.
// Entries that are not objects are dropped.
func ReadUsers(path string) ([]User, error) {
	raw, err := readOptional(path)
	if err != nil || raw == nil {
		return []User{}, err
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return []User{}, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}

	users := make([]User, 0, len(entries))
	for _, e := range entries {
		var u User
		if json.Unmarshal(e, &u) != nil {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// ReadPlaylists reads playlists.json into username → playlists.
// A username whose value is not an array gets no playlists.
func ReadPlaylists(path string) (map[string][]Playlist, error) {
	out := map[string][]Playlist{}

	raw, err := readOptional(path)
	if err != nil || raw == nil {
		return out, err
	}

	var byUser map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byUser); err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}

	for username, v := range byUser {
		var entries []json.RawMessage
		if json.Unmarshal(v, &entries) != nil {
			continue
		}
		playlists := make([]Playlist, 0, len(entries))
		for _, e := range entries {
			p, ok := decodePlaylist(e)
			if ok {
				playlists = append(playlists, p)
			}
		}
		out[username] = playlists
	}
	return out, nil
}

func decodePlaylist(raw json.RawMessage) (Playlist, bool) {
	var p Playlist
	if json.Unmarshal(raw, &p) != nil {
		return Playlist{}, false
	}

	var body struct {
		Videos []json.RawMessage `json:"videos"`
	}
	// A missing or non-array "videos" is an empty playlist.
	_ = json.Unmarshal(raw, &body)

	p.Items = make([]Item, 0, len(body.Videos))
	for _, v := range body.Videos {
		var it Item
		if json.Unmarshal(v, &it) != nil {
			continue
		}
		p.Items = append(p.Items, it)
	}
	return p, true
}

// readOptional returns nil, nil for a missing or whitespace-only file.
func readOptional(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("legacy: reading %s: %w", path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	return raw, nil
}

// Normalize converts an old item into the current model. ok is false for
// items that cannot be addressed: an unknown type, or no videoId/mp3Id.
func (it Item) Normalize() (model.Item, bool) {
	typ := model.ItemType(strings.TrimSpace(it.Type))
	if typ == "" {
		typ = model.ItemVideo
	}
	if !typ.Valid() {
		return model.Item{}, false
	}

	out := model.Item{
		Type:    typ,
		Title:   strings.TrimSpace(it.Title),
		Rating:  int(it.Rating),
		AddedAt: it.AddedAt.Time(),
	}
	switch typ {
	case model.ItemVideo:
		out.VideoID = strings.TrimSpace(it.VideoID)
		out.ThumbnailURL = it.ThumbnailURL
		if out.VideoID == "" {
			return model.Item{}, false
		}
	case model.ItemAudio:
		out.Mp3ID = strings.TrimSpace(it.Mp3ID)
		out.FileURL = it.FileURL
		if out.Mp3ID == "" {
			return model.Item{}, false
		}
	}
	if out.Title == "" {
		out.Title = out.Ref().ID
	}
	return out, true
}
