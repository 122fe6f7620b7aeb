// Package service is MentorFlow's business layer: one service per backend
// resource family.
//
//	Handler (HTTP) → Service (rules, validation, logging) → repository interfaces
//
// Services take interfaces, not *sqlite.DB, so tests hand them small fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/auth"
	"github.com/sakif/mentorflow/internal/lockout"
	"github.com/sakif/mentorflow/internal/metrics"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/repository"
)

// Login messages shown on the form.
const (
	MsgInvalidCredentials = "ID or password is incorrect"
	MsgAccountLocked      = "Too many failed attempts. Account temporarily locked."
)

// AuthEvent names an auth state change delivered to listeners.
type AuthEvent string

const (
	EventSignedIn    AuthEvent = "SIGNED_IN"
	EventSignedOut   AuthEvent = "SIGNED_OUT"
	EventUserUpdated AuthEvent = "USER_UPDATED"
)

// AuthStateListener is called synchronously after an auth state change.
// session is nil for EventSignedOut.
type AuthStateListener func(event AuthEvent, userID string, session *model.Session)

// AuthService handles sign-up, sign-in and session lookups.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → account rows
//   - tokens     *auth.TokenService         → session tokens
//   - passwords  *auth.PasswordService      → bcrypt
//   - lockout    *lockout.Policy            → per-device attempt counter
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	lockout   *lockout.Policy
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu        sync.RWMutex
	listeners map[uint64]AuthStateListener
	nextID    uint64
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	policy *lockout.Policy,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		lockout:   policy,
		metrics:   m,
		logger:    logger,
		listeners: make(map[uint64]AuthStateListener),
	}
}

// AuthResult bundles the account and the issued session so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User    *model.User
	Session *model.Session
}

// SignUp validates the form and creates a password account.
// Validation failures never reach the repository.
func (s *AuthService) SignUp(ctx context.Context, email, password, confirm string) (*model.User, error) {
	email = normaliseEmail(email)
	if err := auth.ValidateSignUp(email, password, confirm); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating account: %w", err)
	}

	s.logger.Info("account created", slog.String("userID", user.ID))
	return user, nil
}

// SignIn checks credentials under the device lockout.
//
// ORDER MATTERS:
//  1. lockout check: while locked, reject without touching the account store
//  2. email shape check: a malformed email is a form error, not an attempt
//  3. credential check: failure counts against the device; the fifth
//     consecutive failure locks it for five minutes
//  4. success clears the device's record
func (s *AuthService) SignIn(ctx context.Context, deviceKey, email, password string) (*AuthResult, error) {
	locked, remaining, err := s.lockout.Check(ctx, deviceKey)
	if err != nil {
		// Advisory state: a broken tracker must not block sign-in.
		s.logger.Warn("lockout check failed", slog.String("error", err.Error()))
	}
	if locked {
		s.metrics.Login(metrics.LoginLocked)
		return nil, apperror.Locked(remaining)
	}

	email = normaliseEmail(email)
	if !auth.ValidEmail(email) {
		return nil, apperror.ValidationFailed("email", auth.MsgInvalidEmail)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		s.passwords.Burn(password)
		return nil, s.failedAttempt(ctx, deviceKey)
	case err != nil:
		return nil, fmt.Errorf("service/auth: looking up account: %w", err)
	}

	if user.PasswordHash == "" {
		// GitHub-only account: there is no password to match.
		s.passwords.Burn(password)
		return nil, s.failedAttempt(ctx, deviceKey)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, s.failedAttempt(ctx, deviceKey)
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	if err := s.lockout.Succeed(ctx, deviceKey); err != nil {
		s.logger.Warn("lockout reset failed", slog.String("error", err.Error()))
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.metrics.Login(metrics.LoginSuccess)
	s.logger.Info("user signed in", slog.String("userID", user.ID))
	s.emit(EventSignedIn, user.ID, result.Session)
	return result, nil
}

func (s *AuthService) failedAttempt(ctx context.Context, deviceKey string) error {
	lockedNow, err := s.lockout.Fail(ctx, deviceKey)
	if err != nil {
		s.logger.Warn("lockout record failed", slog.String("error", err.Error()))
	}
	s.metrics.Login(metrics.LoginFailure)
	if lockedNow {
		s.logger.Warn("device locked after repeated failed logins")
		return &apperror.AppError{Err: apperror.ErrLocked, Message: MsgAccountLocked}
	}
	return apperror.Unauthorized(MsgInvalidCredentials)
}

// SignOut announces the end of a session. Tokens are stateless; the handler
// clears the cookie.
func (s *AuthService) SignOut(ctx context.Context, userID string) {
	s.logger.Info("user signed out", slog.String("userID", userID))
	s.emit(EventSignedOut, userID, nil)
}

// CurrentSession resolves a raw token to a session. A missing, invalid or
// expired token, or a deleted account, is "no session" (nil, nil).
func (s *AuthService) CurrentSession(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, nil
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/auth: loading session user: %w", err)
	}

	return &model.Session{
		UserID:    user.ID,
		Email:     user.Email,
		Metadata:  user.Metadata,
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// MaxMetadataKeys bounds how much a user can stash in their metadata.
const MaxMetadataKeys = 32

// UpdateMetadata merges md into the account metadata. Empty values delete keys.
func (s *AuthService) UpdateMetadata(ctx context.Context, userID string, md map[string]string) (*model.User, error) {
	if len(md) == 0 {
		return nil, apperror.ValidationFailed("data", "no metadata to update")
	}
	if len(md) > MaxMetadataKeys {
		return nil, apperror.ValidationFailed("data", fmt.Sprintf("at most %d keys per update", MaxMetadataKeys))
	}
	for k := range md {
		if strings.TrimSpace(k) == "" {
			return nil, apperror.ValidationFailed("data", "metadata keys must not be empty")
		}
	}

	user, err := s.users.UpdateUserMetadata(ctx, userID, md)
	if err != nil {
		return nil, fmt.Errorf("service/auth: updating metadata: %w", err)
	}

	s.emit(EventUserUpdated, userID, &model.Session{UserID: user.ID, Email: user.Email, Metadata: user.Metadata})
	return user, nil
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: upsert the
// account keyed by GitHub ID, then issue a session.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	ghID := ghUser.ID
	user := &model.User{
		GitHubID:  &ghID,
		Login:     ghUser.Login,
		Email:     normaliseEmail(ghUser.Email),
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)
	s.emit(EventSignedIn, user.ID, result.Session)
	return result, nil
}

// GetUserByID returns the account for id.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("no session")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, exp, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{
		User: user,
		Session: &model.Session{
			UserID:    user.ID,
			Email:     user.Email,
			Metadata:  user.Metadata,
			Token:     token,
			ExpiresAt: exp,
		},
	}, nil
}

// Subscription is the handle returned by SubscribeAuthStateChanges.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops delivery. Safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(sub.cancel)
}

// SubscribeAuthStateChanges registers fn for every sign-in, sign-out and
// metadata update.
func (s *AuthService) SubscribeAuthStateChanges(fn AuthStateListener) *Subscription {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	return &Subscription{cancel: func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}}
}

func (s *AuthService) emit(event AuthEvent, userID string, session *model.Session) {
	s.mu.RLock()
	fns := make([]AuthStateListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(event, userID, session)
	}
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
