package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/auth"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/service"
)

// Messages shown by the auth forms.
const (
	MsgSignedUp  = "Success! Your account is ready. Please log in."
	MsgSignedIn  = "Signed in successfully."
	MsgSignedOut = "Signed out."
)

const stateCookieName = "oauth_state"

// AuthService is the part of service.AuthService the auth handler needs.
type AuthService interface {
	SignUp(ctx context.Context, email, password, confirm string) (*model.User, error)
	SignIn(ctx context.Context, deviceKey, email, password string) (*service.AuthResult, error)
	SignOut(ctx context.Context, userID string)
	CurrentSession(ctx context.Context, token string) (*model.Session, error)
	UpdateMetadata(ctx context.Context, userID string, md map[string]string) (*model.User, error)
	LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*service.AuthResult, error)
}

// GitHubFlow is the OAuth provider. *auth.GitHubProvider implements it.
type GitHubFlow interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// BoardDropper forgets per-user controller state on sign-out.
type BoardDropper interface {
	Drop(userID string)
}

// AuthHandler manages sign-up, sign-in, sign-out, the GitHub OAuth flow and
// the session endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignUp / HandleLogin / HandleLogout → email + password accounts
//   - HandleGitHubLogin / HandleGitHubCallback  → "Sign in with GitHub"
//   - HandleSession / HandleUpdateMetadata      → the current session
//
// The session token lives in an HttpOnly cookie. Sign-in attempts are keyed
// on a device cookie for the lockout.
type AuthHandler struct {
	auth   AuthService
	github GitHubFlow // nil when GitHub sign-in is not configured
	boards BoardDropper
	ttl    time.Duration
	secure bool
	logger *slog.Logger
}

func NewAuthHandler(
	svc AuthService,
	github GitHubFlow,
	boards BoardDropper,
	sessionTTL time.Duration,
	secureCookies bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:   svc,
		github: github,
		boards: boards,
		ttl:    sessionTTL,
		secure: secureCookies,
		logger: logger,
	}
}

type signUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Message string         `json:"message,omitempty"`
	Session *model.Session `json:"session"`
}

// HandleSignUp creates a password account.
//
// HTTP: POST /auth/signup
// REQUEST BODY: {"email": "...", "password": "...", "confirm_password": "..."}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.SignUp(r.Context(), req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		logFailure(h.logger, "sign up", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Message string      `json:"message"`
		User    *model.User `json:"user"`
	}{MsgSignedUp, user})
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /auth/login
//
// A locked device gets 429 with the remaining seconds in the message and
// the account store is never consulted.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	device := auth.DeviceKey(w, r, h.secure)
	result, err := h.auth.SignIn(r.Context(), device, req.Email, req.Password)
	if err != nil {
		logFailure(h.logger, "sign in", err)
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session)
	writeJSON(w, http.StatusOK, sessionResponse{Message: MsgSignedIn, Session: result.Session})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so "logout" means deleting the cookie. The token
// stays valid until it expires, but the browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		h.auth.SignOut(r.Context(), userID)
		if h.boards != nil {
			h.boards.Drop(userID)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, MsgSignedOut)
}

// HandleSession returns the current session, or {"session": null}.
//
// HTTP: GET /api/session
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.auth.CurrentSession(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		logFailure(h.logger, "session lookup", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: session})
}

// HandleUpdateMetadata merges key/value pairs into the account metadata.
//
// HTTP: PATCH /api/session/metadata
// REQUEST BODY: {"data": {"full_name": "Ada"}}
func (h *AuthHandler) HandleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("no session"))
		return
	}

	var req struct {
		Data map[string]string `json:"data"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.UpdateMetadata(r.Context(), userID, req.Data)
	if err != nil {
		logFailure(h.logger, "update metadata", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("sign-in provider", "github"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Upsert the account and issue a session cookie
//  4. Redirect to the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("sign-in provider", "github"))
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: missing or mismatched state")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/login?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	result, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, s *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    s.Token,
		Path:     "/",
		MaxAge:   int(h.ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
