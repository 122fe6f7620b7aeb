package ranking

// Unranked is the league name for a score of zero.
const Unranked = "Unranked"

const (
	pointsPerLeague    = 100
	divisionsPerLeague = 5
	pointsPerDivision  = pointsPerLeague / divisionsPerLeague
)

// League is one badge tier on the ladder.
type League struct {
	Name        string `json:"name"`
	Tier        string `json:"tier"`
	Description string `json:"description"`
}

// Leagues is the ladder, lowest first. Each spans pointsPerLeague points,
// split into five divisions; Apex has no ceiling.
var Leagues = []League{
	{"Novice", "novice", "Entry-level, grounded in basic understanding."},
	{"Learner", "learner", "Developing core skills with foundational knowledge."},
	{"Scholar", "scholar", "Demonstrating solid comprehension and consistent progress."},
	{"Skilled", "skilled", "Proficient in key areas, consistently performing well."},
	{"Expert", "expert", "Mastered complex challenges, highly effective."},
	{"Master", "master", "Dominant in multiple domains, influencing others."},
	{"Elite", "elite", "Top-tier performance, consistently outstanding achievements."},
	{"Apex", "apex", "Unrivaled expertise, setting new benchmarks for excellence."},
}

// Badge is the league + division derived from a score.
type Badge struct {
	League   string
	Tier     string
	Division int // 1..5
}

// LeagueFor derives the badge for score. Scores of zero or less are
// Unranked (tier "novice", division 1, matching a freshly created row).
func LeagueFor(score int) Badge {
	if score <= 0 {
		return Badge{League: Unranked, Tier: Leagues[0].Tier, Division: 1}
	}

	idx := score / pointsPerLeague
	if idx >= len(Leagues) {
		// Apex is open-ended: everything above the ladder sits in its top division.
		top := Leagues[len(Leagues)-1]
		return Badge{League: top.Name, Tier: top.Tier, Division: divisionsPerLeague}
	}

	l := Leagues[idx]
	division := (score%pointsPerLeague)/pointsPerDivision + 1
	return Badge{League: l.Name, Tier: l.Tier, Division: division}
}
