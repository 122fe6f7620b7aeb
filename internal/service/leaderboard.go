package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/repository"
)

// TopListSize is how many rows the leaderboard page shows.
const TopListSize = 10

type LeaderboardService struct {
	repo   repository.LeaderboardRepository
	procs  repository.Procedures
	logger *slog.Logger
}

func NewLeaderboardService(repo repository.LeaderboardRepository, procs repository.Procedures, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{repo: repo, procs: procs, logger: logger}
}

// Ranked returns the whole board with competition ranks (ties share a rank).
func (s *LeaderboardService) Ranked(ctx context.Context) ([]model.LeaderboardEntry, error) {
	out, err := s.procs.LeaderboardWithRank(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: get_leaderboard_with_rank: %w", err)
	}
	return out, nil
}

func (s *LeaderboardService) Top10(ctx context.Context) ([]model.LeaderboardEntry, error) {
	out, err := s.procs.LeaderboardTop10(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: get_leaderboard_top_10: %w", err)
	}
	return out, nil
}

// Top returns the first n ranked entries. n <= 0 returns nothing.
func (s *LeaderboardService) Top(ctx context.Context, n int) ([]model.LeaderboardEntry, error) {
	if n <= 0 {
		return []model.LeaderboardEntry{}, nil
	}
	if n == TopListSize {
		return s.Top10(ctx)
	}
	all, err := s.Ranked(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// EnsureEntry creates a zero-score row for userID if none exists.
func (s *LeaderboardService) EnsureEntry(ctx context.Context, userID string) error {
	if err := s.repo.EnsureLeaderboardEntry(ctx, userID); err != nil {
		return fmt.Errorf("service/leaderboard: ensuring entry for %s: %w", userID, err)
	}
	s.logger.Debug("leaderboard entry ensured", slog.String("userID", userID))
	return nil
}

// Find returns userID's entry within entries, or nil.
func Find(entries []model.LeaderboardEntry, userID string) *model.LeaderboardEntry {
	for i := range entries {
		if entries[i].UserID == userID {
			return &entries[i]
		}
	}
	return nil
}
