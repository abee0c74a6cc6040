// Package model defines the data structures used throughout the application.
//
// The json tags define the wire format the browser client reads, so they use
// camelCase (firstName, imageUrl) while the db tags mirror the SQLite columns.
package model

import (
	"strings"
	"time"
)

// User represents a registered account.
//
// Username keeps the spelling the user typed (trimmed). Uniqueness is checked
// on UsernameKey(Username), so "Alice" and " alice " are the same account.
//
// PasswordHash is a bcrypt hash and is empty for accounts that only ever
// signed in through GitHub. GitHubID is 0 when no GitHub account is linked.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	FirstName    string    `json:"firstName" db:"first_name"`
	ImageURL     string    `json:"imageUrl"  db:"image_url"`
	GitHubID     int64     `json:"-"         db:"github_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Profile is the public slice of a user that the client displays.
// It is what /api/login and /api/me return, and what a Session snapshots.
type Profile struct {
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	ImageURL  string `json:"imageUrl"`
}

// Profile returns the public view of u.
func (u *User) Profile() Profile {
	return Profile{
		Username:  u.Username,
		FirstName: u.FirstName,
		ImageURL:  u.ImageURL,
	}
}

// UsernameKey normalizes a username for uniqueness checks and lookups.
func UsernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
