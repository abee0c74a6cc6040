package model

import "time"

// ItemType tags which variant of Item a record is.
type ItemType string

const (
	ItemVideo ItemType = "video"
	ItemAudio ItemType = "mp3"
)

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	return t == ItemVideo || t == ItemAudio
}

// MinRating and MaxRating bound Item.Rating. New items start at MinRating.
const (
	MinRating = 0
	MaxRating = 5
)

// Playlist is a named, ordered collection of items owned by one user.
//
// Items is never nil once a Playlist leaves the repository, so it always
// encodes as a JSON array. On the wire the list is called "videos" even
// though it also carries audio items; clients and exported data files
// already read that key.
type Playlist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Items     []Item    `json:"videos"`
}

// Item is a tagged union: a reference to an external video, or an uploaded
// audio file. Type says which of VideoID / Mp3ID (and ThumbnailURL / FileURL)
// is meaningful.
type Item struct {
	Type         ItemType  `json:"type"`
	VideoID      string    `json:"videoId,omitempty"`
	Mp3ID        string    `json:"mp3Id,omitempty"`
	Title        string    `json:"title"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	FileURL      string    `json:"fileUrl,omitempty"`
	Rating       int       `json:"rating"`
	AddedAt      time.Time `json:"addedAt"`
}

// ItemRef addresses one item inside a playlist: videos by videoId,
// audio files by mp3Id.
type ItemRef struct {
	Type ItemType
	ID   string
}

// Ref returns the address of i.
func (i Item) Ref() ItemRef {
	if i.Type == ItemAudio {
		return ItemRef{Type: ItemAudio, ID: i.Mp3ID}
	}
	return ItemRef{Type: ItemVideo, ID: i.VideoID}
}

// Find returns the index of the item addressed by ref, or -1.
func (p *Playlist) Find(ref ItemRef) int {
	for i, it := range p.Items {
		if it.Ref() == ref {
			return i
		}
	}
	return -1
}
