package model

// LeaderboardEntry is one row of the ranked leaderboard.
//
// Rank, League, BadgeTier and BadgeDivision are derived by the backend from
// Score; clients only display them.
type LeaderboardEntry struct {
	UserID        string `json:"user_id"`
	FullName      string `json:"full_name"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"`
	League        string `json:"league"`
	BadgeTier     string `json:"badge_tier"`
	BadgeDivision int    `json:"badge_division"`
}
