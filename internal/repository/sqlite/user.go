package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/model"
	"github.com/sakif/mixtape/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, password_hash, first_name, image_url, github_id, created_at`

// CreateUser inserts a new account.
//
// The UNIQUE index on username_key does the duplicate check, so two
// concurrent registrations of "Alice" and "alice" cannot both succeed.
// A GitHubID of 0 is stored as NULL (no linked GitHub account).
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = db.stampOr(user.CreatedAt)

	var githubID sql.NullInt64
	if user.GitHubID != 0 {
		githubID = sql.NullInt64{Int64: user.GitHubID, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, username_key, password_hash, first_name, image_url, github_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		model.UsernameKey(user.Username),
		user.PasswordHash,
		user.FirstName,
		user.ImageURL,
		githubID,
		toMillis(user.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(apperror.CodeUsernameExists, "username already exists")
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	return nil
}

// GetUserByUsername looks a user up by normalized username.
// Returns apperror.ErrNotFound if there is no such account.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username_key = ?`,
		model.UsernameKey(username),
	)
	return scanUser(row, "username "+username)
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	)
	return scanUser(row, "id "+id)
}

// GetUserByGitHubID finds the account linked to a GitHub user.
func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID,
	)
	return scanUser(row, fmt.Sprintf("github id %d", githubID))
}

func scanUser(row *sql.Row, lookup string) (*model.User, error) {
	var (
		u         model.User
		githubID  sql.NullInt64
		createdAt int64
	)

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.FirstName,
		&u.ImageURL,
		&githubID,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(apperror.CodeUserNotFound, "no user with "+lookup)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", lookup, err)
	}

	u.GitHubID = githubID.Int64
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}
