package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/model"
	"github.com/sakif/mixtape/internal/repository"
)

var _ repository.SessionRepository = (*DB)(nil)

// CreateSession stores a login. The caller sets UserID, Profile and
// ExpiresAt; ID and CreatedAt are filled in here.
func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	s.ID = xid.New().String()
	s.CreatedAt = db.stamp()
	s.ExpiresAt = fromMillis(toMillis(s.ExpiresAt))

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, username, first_name, image_url, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.UserID,
		s.Profile.Username,
		s.Profile.FirstName,
		s.Profile.ImageURL,
		toMillis(s.CreatedAt),
		toMillis(s.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting session for user %s: %w", s.UserID, err)
	}
	return nil
}

// GetSession returns the session with the given ID. Expiry is the caller's
// concern; an expired but not yet purged row is still returned.
func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		s                    model.Session
		createdAt, expiresAt int64
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, username, first_name, image_url, created_at, expires_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(
		&s.ID,
		&s.UserID,
		&s.Profile.Username,
		&s.Profile.FirstName,
		&s.Profile.ImageURL,
		&createdAt,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(apperror.CodeUnauthorized, "session not found")
		}
		return nil, fmt.Errorf("sqlite: getting session %s: %w", id, err)
	}

	s.CreatedAt = fromMillis(createdAt)
	s.ExpiresAt = fromMillis(expiresAt)
	return &s, nil
}

// DeleteSession removes a session. Deleting a missing session is not an
// error: logout is idempotent.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session %s: %w", id, err)
	}
	return nil
}

func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
