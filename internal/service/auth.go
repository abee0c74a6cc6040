// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the database
//
// Services accept plain Go values and return domain errors (apperror). They
// never see an *http.Request, so the legacy importer in cmd/import drives the
// same rules as the HTTP API.
//
// DEPENDENCY INJECTION:
// Every service takes repository INTERFACES, not *sqlite.DB. Tests pass
// in-memory fakes; main.go passes the real database.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/auth"
	"github.com/sakif/mixtape/internal/metrics"
	"github.com/sakif/mixtape/internal/model"
	"github.com/sakif/mixtape/internal/repository"
)

// AuthService owns registration, login, logout and session lookup.
//
//	AuthHandler (HTTP) → AuthService → UserRepository / SessionRepository (DB)
//	                                 ↘ TokenService (JWT) / PasswordService (bcrypt)
type AuthService struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	now       func() time.Time
}

// compile-time check: the middleware resolves cookies through AuthService.
var _ auth.SessionResolver = (*AuthService)(nil)

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterInput is the sign-up form. All four fields are required.
type RegisterInput struct {
	Username  string
	Password  string
	FirstName string
	ImageURL  string
}

// AuthResult bundles a new session and the signed token naming it, so the
// handler can set the cookie and answer in one step.
type AuthResult struct {
	Session *model.Session
	Token   string
}

// Register creates a password account.
//
// RULES:
//   - username, password, firstName, imageUrl must all be non-blank → missing_fields
//   - password must pass auth.CheckStrength → weak_password
//   - username must be free, ignoring case and surrounding spaces → username_exists
//
// Only the bcrypt hash of the password is stored.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	firstName := strings.TrimSpace(in.FirstName)
	imageURL := strings.TrimSpace(in.ImageURL)

	if username == "" || in.Password == "" || firstName == "" || imageURL == "" {
		return nil, apperror.ValidationFailed(apperror.CodeMissingFields, "",
			"username, password, firstName and imageUrl are required")
	}

	if err := auth.CheckStrength(in.Password); err != nil {
		msg := "password must be at least 6 characters and contain a letter, a digit and a symbol"
		if errors.Is(err, auth.ErrPasswordTooLong) {
			msg = "password must be 72 bytes or fewer"
		}
		return nil, apperror.ValidationFailed(apperror.CodeWeakPassword, "password", msg)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		FirstName:    firstName,
		ImageURL:     imageURL,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: registering %q: %w", username, err)
	}

	metrics.UsersRegistered.WithLabelValues("password").Inc()
	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Authenticate checks a username/password pair.
//
// Unknown user, wrong password, and GitHub-only account (no hash) all give
// the same invalid_credentials error, so the response does not reveal which
// usernames exist.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, apperror.ValidationFailed(apperror.CodeMissingFields, "",
			"username and password are required")
	}

	invalid := apperror.Unauthorized(apperror.CodeInvalidCredentials, "invalid username or password")

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			metrics.LoginsTotal.WithLabelValues("invalid").Inc()
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up %q: %w", username, err)
	}

	if user.PasswordHash == "" {
		metrics.LoginsTotal.WithLabelValues("invalid").Inc()
		return nil, invalid
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			metrics.LoginsTotal.WithLabelValues("invalid").Inc()
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: verifying password for %s: %w", user.ID, err)
	}

	return user, nil
}

// Login authenticates and opens a session.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	res, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("sessionID", res.Session.ID),
	)
	return res, nil
}

// LoginGitHub links or creates the account for a GitHub profile and opens a
// session. A GitHub login that collides with an existing password account's
// username fails with username_exists rather than taking the account over.
func (s *AuthService) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, errors.New("service/auth: GitHub user must not be nil")
	}

	user, err := s.users.GetUserByGitHubID(ctx, gh.ID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: looking up github id %d: %w", gh.ID, err)
		}

		firstName := strings.TrimSpace(gh.Name)
		if firstName == "" {
			firstName = gh.Login
		}
		user = &model.User{
			Username:  gh.Login,
			FirstName: firstName,
			ImageURL:  gh.AvatarURL,
			GitHubID:  gh.ID,
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: creating GitHub account %q: %w", gh.Login, err)
		}
		metrics.UsersRegistered.WithLabelValues("github").Inc()
		s.logger.Info("user registered via GitHub",
			slog.String("userID", user.ID),
			slog.String("username", user.Username),
		)
	}

	return s.openSession(ctx, user)
}

func (s *AuthService) openSession(ctx context.Context, user *model.User) (*AuthResult, error) {
	// Expired rows are cleared lazily here; there is no background sweeper.
	if n, err := s.sessions.DeleteExpiredSessions(ctx, s.now()); err != nil {
		s.logger.Warn("purging expired sessions failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.Debug("purged expired sessions", slog.Int64("count", n))
	}

	session := &model.Session{
		UserID:    user.ID,
		Profile:   user.Profile(),
		ExpiresAt: s.now().Add(s.tokens.TTL()),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: creating session for %s: %w", user.ID, err)
	}

	token, err := s.tokens.Generate(session.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: signing token for session %s: %w", session.ID, err)
	}

	return &AuthResult{Session: session, Token: token}, nil
}

// ResolveSession validates a token and returns the live session it names.
// Any failure is reported as unauthorized.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*model.Session, error) {
	unauthorized := apperror.Unauthorized(apperror.CodeUnauthorized, "valid authentication required")

	sessionID, err := s.tokens.Validate(token)
	if err != nil {
		return nil, unauthorized
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, unauthorized
		}
		return nil, fmt.Errorf("service/auth: loading session %s: %w", sessionID, err)
	}

	if session.Expired(s.now()) {
		return nil, unauthorized
	}
	return session, nil
}

// Logout ends the session named by token. It never fails for a bad or
// already revoked token: the caller clears the cookie either way.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	sessionID, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("service/auth: deleting session %s: %w", sessionID, err)
	}
	s.logger.Info("user logged out", slog.String("sessionID", sessionID))
	return nil
}

// PurgeExpiredSessions removes stale session rows. Called at startup.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service/auth: %w", err)
	}
	return n, nil
}
