package controller

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/ranking"
	"github.com/sakif/mentorflow/internal/realtime"
	"github.com/sakif/mentorflow/internal/service"
)

// DefaultRefreshInterval is how often Run re-fetches the top 10.
const DefaultRefreshInterval = 10 * time.Second

const (
	unknownName       = "Unknown"
	prefixBoardFailed = "Failed to load leaderboard data: "
	prefixTop10Failed = "Failed to load top 10 leaderboard: "
	podiumSize        = 3
)

// LeaderboardService is the part of service.LeaderboardService a view needs.
type LeaderboardService interface {
	Ranked(ctx context.Context) ([]model.LeaderboardEntry, error)
	Top10(ctx context.Context) ([]model.LeaderboardEntry, error)
	EnsureEntry(ctx context.Context, userID string) error
}

// Subscriber is the realtime feed a view listens on.
type Subscriber interface {
	Subscribe(name string, f realtime.Filter, h realtime.Handler) *realtime.Channel
}

// LeaderboardSnapshot is what the leaderboard page renders.
type LeaderboardSnapshot struct {
	Top3       []model.LeaderboardEntry `json:"top3"`
	Top10      []model.LeaderboardEntry `json:"top10"`
	Ranked     []model.LeaderboardEntry `json:"ranked"`
	Me         *model.LeaderboardEntry  `json:"me"`
	TopPercent int                      `json:"top_percent"`
	IsRanked   bool                     `json:"is_ranked"`
	ErrorTop3  string                   `json:"error_top3,omitempty"`
	ErrorTop10 string                   `json:"error_top10,omitempty"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// LeaderboardView keeps one user's leaderboard snapshot fresh. The ranked
// list and the top 10 are fetched independently, each behind its own
// sequence guard, and fail independently.
type LeaderboardView struct {
	userID string
	svc    LeaderboardService
	logger *slog.Logger

	mu       sync.Mutex
	snap     LeaderboardSnapshot
	rankSeq  Sequence
	top10Seq Sequence
}

func NewLeaderboardView(userID string, svc LeaderboardService, logger *slog.Logger) *LeaderboardView {
	return &LeaderboardView{
		userID: userID,
		svc:    svc,
		logger: logger.With(slog.String("userID", userID)),
		snap: LeaderboardSnapshot{
			Top3:   []model.LeaderboardEntry{},
			Top10:  []model.LeaderboardEntry{},
			Ranked: []model.LeaderboardEntry{},
		},
	}
}

// Snapshot returns a copy of the current state.
func (v *LeaderboardView) Snapshot() LeaderboardSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := v.snap
	s.Top3 = slices.Clone(v.snap.Top3)
	s.Top10 = slices.Clone(v.snap.Top10)
	s.Ranked = slices.Clone(v.snap.Ranked)
	if v.snap.Me != nil {
		me := *v.snap.Me
		s.Me = &me
	}
	return s
}

// Refresh re-fetches both sections. It returns the first error; each
// section's error string is recorded separately.
func (v *LeaderboardView) Refresh(ctx context.Context) error {
	errRanked := v.refreshRanked(ctx)
	errTop10 := v.refreshTop10(ctx)
	if errRanked != nil {
		return errRanked
	}
	return errTop10
}

// refreshRanked loads the full ranking. If the user has no row yet, one is
// created and the ranking fetched once more; a user still missing after
// that is shown as unranked.
func (v *LeaderboardView) refreshRanked(ctx context.Context) error {
	ticket := v.rankSeq.Next()

	ranked, err := v.svc.Ranked(ctx)
	if err == nil && service.Find(ranked, v.userID) == nil {
		if ensureErr := v.svc.EnsureEntry(ctx, v.userID); ensureErr != nil {
			if !apperror.IsCanceled(ensureErr) {
				v.logger.Error("creating leaderboard entry", slog.String("error", ensureErr.Error()))
			}
		} else {
			ranked, err = v.svc.Ranked(ctx)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.rankSeq.Current(ticket) {
		return nil
	}
	if err != nil {
		if apperror.IsCanceled(err) {
			return nil
		}
		v.snap.ErrorTop3 = prefixBoardFailed + errorText(err)
		return err
	}

	if ranked == nil {
		ranked = []model.LeaderboardEntry{}
	}
	withNames(ranked)
	v.snap.ErrorTop3 = ""
	v.snap.Ranked = ranked
	v.snap.Top3 = ranked[:min(podiumSize, len(ranked))]
	v.snap.Me = nil
	v.snap.TopPercent, v.snap.IsRanked = 0, false
	if me := service.Find(ranked, v.userID); me != nil {
		cp := *me
		v.snap.Me = &cp
		v.snap.TopPercent, v.snap.IsRanked = ranking.Bucket(me.Rank, len(ranked))
	}
	v.snap.UpdatedAt = time.Now()
	return nil
}

func (v *LeaderboardView) refreshTop10(ctx context.Context) error {
	ticket := v.top10Seq.Next()

	top, err := v.svc.Top10(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.top10Seq.Current(ticket) {
		return nil
	}
	if err != nil {
		if apperror.IsCanceled(err) {
			return nil
		}
		v.snap.ErrorTop10 = prefixTop10Failed + errorText(err)
		return err
	}

	if top == nil {
		top = []model.LeaderboardEntry{}
	}
	withNames(top)
	v.snap.ErrorTop10 = ""
	v.snap.Top10 = top
	v.snap.UpdatedAt = time.Now()
	return nil
}

// Run refreshes immediately, then re-fetches the top 10 every interval and
// everything on each leaderboard change. onUpdate receives the snapshot after
// every refresh. Run returns when ctx is done.
func (v *LeaderboardView) Run(ctx context.Context, feed Subscriber, interval time.Duration, onUpdate func(LeaderboardSnapshot)) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	changed := make(chan struct{}, 1)
	ch := feed.Subscribe("leaderboard:"+v.userID, realtime.Filter{Table: "leaderboard"}, func(realtime.Event) {
		select {
		case changed <- struct{}{}:
		default: // a refresh is already queued
		}
	})
	defer ch.Unsubscribe()

	v.Refresh(ctx)
	onUpdate(v.Snapshot())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.refreshTop10(ctx)
		case <-changed:
			v.Refresh(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		onUpdate(v.Snapshot())
	}
}

func withNames(entries []model.LeaderboardEntry) {
	for i := range entries {
		if entries[i].FullName == "" {
			entries[i].FullName = unknownName
		}
	}
}
