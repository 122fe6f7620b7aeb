package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/metrics"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/repository"
)

// MsgAnnouncementEmpty is returned when an admin broadcast is missing a field.
const MsgAnnouncementEmpty = "Title and Message cannot be empty."

type NotificationService struct {
	repo    repository.NotificationRepository
	procs   repository.Procedures
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewNotificationService(
	repo repository.NotificationRepository,
	procs repository.Procedures,
	m *metrics.Metrics,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{repo: repo, procs: procs, metrics: m, logger: logger}
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string) ([]model.Notification, error) {
	out, err := s.repo.ListNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/notification: listing: %w", err)
	}
	return out, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service/notification: counting unread: %w", err)
	}
	return n, nil
}

// MarkRead flags one notification. Other users' notifications are NotFound.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		return fmt.Errorf("service/notification: marking %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead flags every unread notification of the user and returns how
// many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service/notification: marking all read: %w", err)
	}
	return n, nil
}

// Broadcast sends an announcement to every student.
func (s *NotificationService) Broadcast(ctx context.Context, title, message string) (int, error) {
	title = strings.TrimSpace(title)
	message = strings.TrimSpace(message)
	if title == "" || message == "" {
		return 0, apperror.ValidationFailed("title", MsgAnnouncementEmpty)
	}

	n, err := s.procs.SendAdminNotification(ctx, title, message)
	if err != nil {
		return 0, fmt.Errorf("service/notification: send_admin_notification: %w", err)
	}

	s.metrics.NotificationsSent(model.NotificationAdmin, n)
	s.logger.Info("announcement sent", slog.String("title", title), slog.Int("recipients", n))
	return n, nil
}
