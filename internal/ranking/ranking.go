// Package ranking holds the two leaderboard derivations MentorFlow needs:
// the coarse "top X%" display bucket and the league/division badge.
package ranking

import "math"

const (
	minBucket = 10
	maxBucket = 100
)

// Bucket converts a server-provided rank into the "Top X%" badge.
//
//	raw = rank/total*100
//	raw <= 10  → 10
//	raw >  90  → 100
//	otherwise  → raw rounded UP to the next multiple of 10
//
// This is a display badge, not a statistical percentile: rank 1 of 3 is
// "Top 40%", rank 15 of 30 is "Top 50%".
//
// ok is false when no bucket can be computed (empty board, or a rank
// outside 1..total); callers show the user as unranked.
func Bucket(rank, total int) (bucket int, ok bool) {
	if total <= 0 || rank <= 0 || rank > total {
		return 0, false
	}

	// Multiply before dividing: 9/10*100 in floating point is 90.00000000000001,
	// which would wrongly cross the 90% clamp.
	raw := float64(rank*100) / float64(total)
	switch {
	case raw <= 10:
		return minBucket, true
	case raw > 90:
		return maxBucket, true
	}
	return int(math.Ceil(raw/10)) * 10, true
}
