// Package guard decides whether a signed-in user may reach a protected area.
//
// DECISION ORDER:
//  1. session still loading           → Checking
//  2. no session                      → RedirectLogin
//  3. profile known to be incomplete  → RedirectCompleteProfile
//  4. role on the loaded profile      → compare with the required role
//  5. otherwise one role-only fetch   → compare; any fetch error denies
package guard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/mentorflow/internal/auth"
	"github.com/sakif/mentorflow/internal/model"
)

type Decision int

const (
	Checking Decision = iota
	RedirectLogin
	RedirectCompleteProfile
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Checking:
		return "checking"
	case RedirectLogin:
		return "redirect_login"
	case RedirectCompleteProfile:
		return "redirect_complete_profile"
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	}
	return "unknown"
}

// Input is what the guard knows about the caller.
type Input struct {
	Loading bool
	UserID  string
	// Profile is the already-loaded profile, if any.
	Profile *model.Profile
	// ProfileComplete is nil when completeness is not known yet.
	ProfileComplete *bool
	// RequiredRole empty means any signed-in user with a complete profile.
	RequiredRole string
}

// RoleFetcher loads only the role of a user.
type RoleFetcher interface {
	GetRole(ctx context.Context, userID string) (string, error)
}

// Decide applies the decision order above.
func Decide(ctx context.Context, in Input, roles RoleFetcher) Decision {
	switch {
	case in.Loading:
		return Checking
	case in.UserID == "":
		return RedirectLogin
	case in.ProfileComplete != nil && !*in.ProfileComplete:
		return RedirectCompleteProfile
	case in.RequiredRole == "":
		return Allow
	}

	if in.Profile != nil && in.Profile.Role != "" {
		return compare(in.Profile.Role, in.RequiredRole)
	}

	role, err := roles.GetRole(ctx, in.UserID)
	if err != nil {
		return Deny
	}
	return compare(role, in.RequiredRole)
}

func compare(have, want string) Decision {
	if have == want {
		return Allow
	}
	return Deny
}

// ProfileSource is what Require needs to build an Input.
type ProfileSource interface {
	RoleFetcher
	Get(ctx context.Context, userID string) (*model.Profile, error)
}

type contextKey struct{}

// ProfileFromContext returns the profile Require loaded for this request.
func ProfileFromContext(ctx context.Context) (*model.Profile, bool) {
	p, ok := ctx.Value(contextKey{}).(*model.Profile)
	return p, ok && p != nil
}

// Require guards the wrapped routes. It must run after auth.RequireAuth or
// auth.OptionalAuth so the session is in the context.
//
//	RedirectLogin            → 401 unauthorized
//	RedirectCompleteProfile  → 403 profile_incomplete
//	Deny                     → 403 forbidden
func Require(profiles ProfileSource, requiredRole string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			in := Input{RequiredRole: requiredRole}

			var profile *model.Profile
			if userID, ok := auth.UserIDFromContext(ctx); ok {
				in.UserID = userID
				p, err := profiles.Get(ctx, userID)
				if err != nil {
					logger.Warn("guard: loading profile", slog.String("userID", userID), slog.String("error", err.Error()))
					reject(w, http.StatusForbidden, "forbidden", "Access denied.")
					return
				}
				profile = p
				complete := p.IsComplete()
				in.Profile = p
				in.ProfileComplete = &complete
			}

			switch d := Decide(ctx, in, profiles); d {
			case Allow:
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, contextKey{}, profile)))
			case RedirectLogin:
				reject(w, http.StatusUnauthorized, "unauthorized", "Please log in.")
			case RedirectCompleteProfile:
				reject(w, http.StatusForbidden, "profile_incomplete", "Please complete your profile.")
			default:
				logger.Info("guard: access denied",
					slog.String("userID", in.UserID),
					slog.String("required", requiredRole),
					slog.String("decision", d.String()),
				)
				reject(w, http.StatusForbidden, "forbidden", "Access denied.")
			}
		})
	}
}

func reject(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
