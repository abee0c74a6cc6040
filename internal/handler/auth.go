package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/mixtape/internal/apperror"
	"github.com/sakif/mixtape/internal/auth"
	"github.com/sakif/mixtape/internal/model"
	"github.com/sakif/mixtape/internal/service"
)

const stateCookieName = "oauth_state"

// AuthHandler serves registration, password login, logout, "who am I",
// and the optional GitHub sign-in flow.
//
// DEPENDENCY CHAIN:
//   - auth   *service.AuthService   → accounts and sessions
//   - github *auth.GitHubProvider   → OAuth code exchange (nil when GitHub sign-in is off)
type AuthHandler struct {
	auth         *service.AuthService
	github       *auth.GitHubProvider
	cookieSecure bool
	logger       *slog.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	github *auth.GitHubProvider,
	cookieSecure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:         authService,
		github:       github,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

// GitHubEnabled reports whether the /auth/github routes should be mounted.
func (h *AuthHandler) GitHubEnabled() bool {
	return h.github != nil
}

type registerRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	ImageURL  string `json:"imageUrl"`
}

// HandleRegister creates an account. It does not log the user in.
//
// HTTP: POST /api/register
// BODY: {"username", "password", "firstName", "imageUrl"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	_, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		ImageURL:  req.ImageURL,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ok)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	OK   bool          `json:"ok"`
	User model.Profile `json:"user"`
}

// HandleLogin checks the credentials, opens a session and sets the cookie.
//
// HTTP: POST /api/login
// BODY: {"username", "password"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.setSessionCookie(w, res)
	writeJSON(w, http.StatusOK, loginResponse{OK: true, User: res.Session.Profile})
}

// HandleLogout deletes the session row and clears the cookie. It answers
// {"ok": true} even without a valid cookie.
//
// HTTP: POST /api/logout
//
// WHY POST AND NOT GET?
// Logout changes state. A GET could be triggered by a prefetch or an
// <img> tag on another site.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Error("logout failed", slog.String("error", err.Error()))
		}
	}

	h.clearCookie(w, auth.CookieName)
	writeJSON(w, http.StatusOK, ok)
}

type meResponse struct {
	User *model.Profile `json:"user"`
}

// HandleMe returns the logged-in profile, or {"user": null}.
//
// HTTP: GET /api/me (OptionalAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	session, found := auth.SessionFromContext(r.Context())
	if !found {
		writeJSON(w, http.StatusOK, meResponse{})
		return
	}
	profile := session.Profile
	writeJSON(w, http.StatusOK, meResponse{User: &profile})
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes both into a short-lived cookie and into the GitHub
// URL. The callback only proceeds when the two match, which proves the
// flow was started by this browser on this site.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Link or create the account and open a session
//  4. Set the session cookie and redirect to the app
//
// A GitHub login whose username already belongs to a password account
// lands on "/?auth=conflict"; a denied authorization on "/?auth=denied".
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	// single use
	h.clearCookie(w, stateCookieName)

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	res, err := h.auth.LoginGitHub(r.Context(), ghUser)
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			h.logger.Info("auth callback: username taken by a password account",
				slog.String("login", ghUser.Login),
			)
			http.Redirect(w, r, "/?auth=conflict", http.StatusSeeOther)
			return
		}
		h.logger.Error("auth callback: login failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("user authenticated via GitHub",
		slog.String("userID", res.Session.UserID),
		slog.String("login", ghUser.Login),
	)
	h.setSessionCookie(w, res)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// setSessionCookie stores the token in an HttpOnly cookie that expires
// with the session.
//
// HttpOnly keeps the token away from page JavaScript; SameSite=Lax keeps
// it off cross-site POSTs.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, res *service.AuthResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.Session.ExpiresAt,
		MaxAge:   int(time.Until(res.Session.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // delete now
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
