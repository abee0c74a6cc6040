package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sakif/mixtape/internal/model"
)

// CookieName is the cookie holding the signed session token.
const CookieName = "token"

// SessionResolver turns the raw cookie value into a live session.
// It fails for a bad signature, an expired token, or a session that was
// logged out. The AuthService implements it.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*model.Session, error)
}

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. A package-private type means
// only THIS package can create the key, so no other package can read or
// shadow the session by accident.
type contextKey string

const sessionKey contextKey = "session"

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the JWT from the "token" HttpOnly cookie, resolves it to a session,
// and stores the session in the request context. Anything else ends the
// request with 401 {"error":"unauthorized"}.
//
// COOKIE-BASED TOKEN STORAGE:
// HttpOnly means JavaScript cannot read the cookie, which keeps an XSS bug
// from stealing the token.
func RequireAuth(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := extractSession(r, sessions)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// OptionalAuth attaches the session when a valid cookie is present but lets
// anonymous requests through. GET /api/me uses it to answer {"user": null}.
func OptionalAuth(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session, err := extractSession(r, sessions); err == nil {
				r = r.WithContext(WithSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession returns a copy of ctx carrying session.
func WithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext returns the session attached by RequireAuth/OptionalAuth.
//
// Usage in handlers:
//
//	session, ok := auth.SessionFromContext(r.Context())
//	if !ok {
//	    // anonymous request
//	}
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*model.Session)
	return s, ok && s != nil
}

// UserIDFromContext is a shortcut for the owner ID of the current session.
func UserIDFromContext(ctx context.Context) (string, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return "", false
	}
	return s.UserID, s.UserID != ""
}

func extractSession(r *http.Request, sessions SessionResolver) (*model.Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, err
	}
	return sessions.ResolveSession(r.Context(), cookie.Value)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": "valid authentication required",
	})
}
