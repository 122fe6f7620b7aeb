package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/auth"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/service"
)

// MsgProfileUpdated is shown after a successful profile save.
const MsgProfileUpdated = "Profile updated successfully!"

// ProfileService is the part of service.ProfileService the handler needs.
type ProfileService interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	Upsert(ctx context.Context, userID string, in model.Profile) (*model.Profile, error)
}

// DashboardService builds the dashboard overview.
type DashboardService interface {
	Overview(ctx context.Context, userID string) (*service.Overview, error)
}

// ProfileHandler serves the signed-in user's own profile and dashboard.
type ProfileHandler struct {
	profiles  ProfileService
	dashboard DashboardService
	logger    *slog.Logger
}

func NewProfileHandler(profiles ProfileService, dashboard DashboardService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, dashboard: dashboard, logger: logger}
}

type profileResponse struct {
	Message  string         `json:"message,omitempty"`
	Profile  *model.Profile `json:"profile"`
	Complete bool           `json:"complete"`
}

// HandleGet returns the caller's profile. A user who has never saved one
// gets {"profile": null, "complete": false}.
//
// HTTP: GET /api/profile
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("no session"))
		return
	}

	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		logFailure(h.logger, "load profile", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: p, Complete: p.IsComplete()})
}

// HandleUpdate creates or updates the caller's profile.
//
// HTTP: PUT /api/profile
// REQUEST BODY: {"full_name": "...", "academic_year": "...", "branch": "..."}
//
// The role cannot be set from here; it is ignored by the service.
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("no session"))
		return
	}

	var in model.Profile
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.profiles.Upsert(r.Context(), userID, in)
	if err != nil {
		logFailure(h.logger, "update profile", err)
		writeError(w, err)
		return
	}

	h.logger.Info("profile updated", slog.String("userID", userID))
	writeJSON(w, http.StatusOK, profileResponse{Message: MsgProfileUpdated, Profile: p, Complete: p.IsComplete()})
}

// HandleDashboard returns the dashboard counters and ranking card.
//
// HTTP: GET /api/dashboard
// Guarded: a complete profile is required.
func (h *ProfileHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("no session"))
		return
	}

	ov, err := h.dashboard.Overview(r.Context(), userID)
	if err != nil {
		if apperror.IsCanceled(err) {
			return
		}
		logFailure(h.logger, "dashboard overview", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}
