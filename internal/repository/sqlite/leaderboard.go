package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/ranking"
	"github.com/sakif/mentorflow/internal/realtime"
	"github.com/sakif/mentorflow/internal/repository"
)

var _ repository.LeaderboardRepository = (*DB)(nil)

// EnsureLeaderboardEntry inserts a score-0 row for userID if none exists.
func (db *DB) EnsureLeaderboardEntry(ctx context.Context, userID string) error {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO leaderboard (user_id, score, updated_at) VALUES (?, 0, ?)
		 ON CONFLICT (user_id) DO NOTHING`, userID, db.now())
	if err != nil {
		return fmt.Errorf("sqlite: ensuring leaderboard entry for %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		db.publish("leaderboard", realtime.EventInsert, userID, model.LeaderboardEntry{UserID: userID})
	}
	return nil
}

// rankedQuery is get_leaderboard_with_rank. RANK() gives tied scores the same
// rank and leaves a gap after them (1, 1, 3).
const rankedQuery = `
	SELECT l.user_id, COALESCE(p.full_name, ''), l.score,
	       RANK() OVER (ORDER BY l.score DESC) AS rnk
	FROM leaderboard l
	LEFT JOIN profiles p ON p.id = l.user_id
	ORDER BY rnk, COALESCE(p.full_name, ''), l.user_id`

// LeaderboardWithRank returns every leaderboard row with rank and league.
func (db *DB) LeaderboardWithRank(ctx context.Context) ([]model.LeaderboardEntry, error) {
	rows, err := db.conn.QueryContext(ctx, rankedQuery)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_leaderboard_with_rank: %w", err)
	}
	return scanLeaderboard(rows)
}

// LeaderboardTop10 returns the first ten rows of the ranked list.
func (db *DB) LeaderboardTop10(ctx context.Context) ([]model.LeaderboardEntry, error) {
	rows, err := db.conn.QueryContext(ctx, rankedQuery+` LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get_leaderboard_top10: %w", err)
	}
	return scanLeaderboard(rows)
}

func scanLeaderboard(rows *sql.Rows) ([]model.LeaderboardEntry, error) {
	defer rows.Close()

	out := []model.LeaderboardEntry{}
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.FullName, &e.Score, &e.Rank); err != nil {
			return nil, fmt.Errorf("sqlite: scanning leaderboard row: %w", err)
		}
		badge := ranking.LeagueFor(e.Score)
		e.League = badge.League
		e.BadgeTier = badge.Tier
		e.BadgeDivision = badge.Division
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating leaderboard rows: %w", err)
	}
	return out, nil
}
