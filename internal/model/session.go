package model

import "time"

// Session is the server-held identity established by a successful login.
//
// The browser only holds a signed token naming the session ID. Deleting the
// row (logout) revokes the token even though its signature is still valid.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Profile   Profile   `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
