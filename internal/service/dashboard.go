package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/ranking"
	"github.com/sakif/mentorflow/internal/repository"
)

// dashboardTopCount is the size of the "top students" card.
const dashboardTopCount = 3

// Overview is everything the dashboard page renders.
type Overview struct {
	TotalStudents  int                      `json:"total_students"`
	TasksCompleted int                      `json:"tasks_completed"`
	PendingReviews int                      `json:"pending_reviews"`
	TopStudents    []model.LeaderboardEntry `json:"top_students"`
	Me             *model.LeaderboardEntry  `json:"me"`
	TopPercent     int                      `json:"top_percent"`
	Ranked         bool                     `json:"ranked"`
}

type DashboardService struct {
	profiles  repository.ProfileRepository
	userTasks repository.UserTaskRepository
	procs     repository.Procedures
	logger    *slog.Logger
}

func NewDashboardService(
	profiles repository.ProfileRepository,
	userTasks repository.UserTaskRepository,
	procs repository.Procedures,
	logger *slog.Logger,
) *DashboardService {
	return &DashboardService{profiles: profiles, userTasks: userTasks, procs: procs, logger: logger}
}

// Overview gathers the counters and the ranking card for userID. Any
// failing query fails the whole overview so the page never mixes fresh
// and missing numbers.
func (s *DashboardService) Overview(ctx context.Context, userID string) (*Overview, error) {
	var (
		total, completed, pending int
		board                     []model.LeaderboardEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if total, err = s.profiles.CountProfiles(gctx); err != nil {
			return fmt.Errorf("service/dashboard: counting profiles: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if completed, err = s.userTasks.CountUserTasksByStatus(gctx, userID, model.StatusCompleted); err != nil {
			return fmt.Errorf("service/dashboard: counting completed: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if pending, err = s.userTasks.CountUserTasksByStatus(gctx, userID, model.StatusPendingReview); err != nil {
			return fmt.Errorf("service/dashboard: counting pending: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if board, err = s.procs.LeaderboardWithRank(gctx); err != nil {
			return fmt.Errorf("service/dashboard: loading leaderboard: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ov := &Overview{
		TotalStudents:  total,
		TasksCompleted: completed,
		PendingReviews: pending,
		TopStudents:    board[:min(dashboardTopCount, len(board))],
	}
	if me := Find(board, userID); me != nil {
		ov.Me = me
		ov.TopPercent, ov.Ranked = ranking.Bucket(me.Rank, len(board))
	}
	return ov, nil
}
