package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/repository"
)

// MsgProfileFieldsRequired is the complete-profile form error.
const MsgProfileFieldsRequired = "All fields are required."

// ProfileService reads and writes profiles.
type ProfileService struct {
	repo   repository.ProfileRepository
	logger *slog.Logger
}

func NewProfileService(repo repository.ProfileRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{repo: repo, logger: logger}
}

// Get returns the profile, or nil when the user has not created one yet.
func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	return p, nil
}

// GetRole is the role-only fetch used by the route guard.
func (s *ProfileService) GetRole(ctx context.Context, userID string) (string, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", apperror.NotFound("profile", userID)
	}
	return p.Role, nil
}

// IsComplete reports whether the user's profile has every mandatory field.
func (s *ProfileService) IsComplete(ctx context.Context, userID string) (bool, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return p.IsComplete(), nil
}

// Upsert saves the editable fields. The role in the input is ignored:
// users cannot promote themselves.
func (s *ProfileService) Upsert(ctx context.Context, userID string, in model.Profile) (*model.Profile, error) {
	p := &model.Profile{
		ID:           userID,
		FullName:     strings.TrimSpace(in.FullName),
		AcademicYear: strings.TrimSpace(in.AcademicYear),
		Branch:       strings.TrimSpace(in.Branch),
	}
	if !p.IsComplete() {
		return nil, apperror.ValidationFailed("profile", MsgProfileFieldsRequired)
	}

	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("service/profile: saving %s: %w", userID, err)
	}

	s.logger.Info("profile saved", slog.String("userID", userID))
	return p, nil
}
