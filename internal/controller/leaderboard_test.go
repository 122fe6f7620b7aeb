package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/realtime"
)

// fakeBoard is an in-memory LeaderboardService. When ensureAdds is false,
// EnsureEntry succeeds without inserting (a row the ranking never shows).
type fakeBoard struct {
	mu         sync.Mutex
	entries    []model.LeaderboardEntry
	ensureAdds bool
	rankedErr  error
	top10Err   error

	rankedCalls, top10Calls, ensureCalls int
}

func (f *fakeBoard) Ranked(ctx context.Context) ([]model.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rankedCalls++
	if f.rankedErr != nil {
		return nil, f.rankedErr
	}
	return append([]model.LeaderboardEntry(nil), f.entries...), nil
}

func (f *fakeBoard) Top10(ctx context.Context) ([]model.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.top10Calls++
	if f.top10Err != nil {
		return nil, f.top10Err
	}
	out := append([]model.LeaderboardEntry(nil), f.entries...)
	return out[:min(10, len(out))], nil
}

func (f *fakeBoard) EnsureEntry(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.ensureAdds {
		f.entries = append(f.entries, model.LeaderboardEntry{UserID: userID, Rank: len(f.entries) + 1, League: "Unranked"})
	}
	return nil
}

func (f *fakeBoard) calls() (ranked, top10, ensure int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rankedCalls, f.top10Calls, f.ensureCalls
}

func fiveEntries() []model.LeaderboardEntry {
	return []model.LeaderboardEntry{
		{UserID: "a", FullName: "Ada", Score: 300, Rank: 1},
		{UserID: "b", FullName: "", Score: 200, Rank: 2},
		{UserID: "c", FullName: "Cy", Score: 200, Rank: 2},
		{UserID: "u1", FullName: "Me", Score: 100, Rank: 4},
		{UserID: "e", FullName: "Eve", Score: 0, Rank: 5},
	}
}

func TestRefresh_BuildsSnapshot(t *testing.T) {
	svc := &fakeBoard{entries: fiveEntries()}
	v := NewLeaderboardView("u1", svc, quietLogger())

	require.NoError(t, v.Refresh(context.Background()))

	snap := v.Snapshot()
	assert.Len(t, snap.Top3, 3)
	assert.Len(t, snap.Top10, 5)
	assert.Len(t, snap.Ranked, 5)
	require.NotNil(t, snap.Me)
	assert.Equal(t, 4, snap.Me.Rank)
	assert.True(t, snap.IsRanked)
	assert.Equal(t, 80, snap.TopPercent) // rank 4 of 5
	assert.Equal(t, "Unknown", snap.Top3[1].FullName)
	assert.Equal(t, "Unknown", snap.Top10[1].FullName)

	_, _, ensure := svc.calls()
	assert.Zero(t, ensure)
}

func TestRefresh_MissingEntryIsCreatedAndRefetchedOnce(t *testing.T) {
	svc := &fakeBoard{entries: fiveEntries()[:3], ensureAdds: true}
	v := NewLeaderboardView("u1", svc, quietLogger())

	require.NoError(t, v.Refresh(context.Background()))

	ranked, _, ensure := svc.calls()
	assert.Equal(t, 1, ensure)
	assert.Equal(t, 2, ranked)
	snap := v.Snapshot()
	require.NotNil(t, snap.Me)
	assert.Equal(t, 4, snap.Me.Rank)
	assert.Equal(t, 100, snap.TopPercent)
}

func TestRefresh_StillMissingIsUnranked(t *testing.T) {
	svc := &fakeBoard{entries: fiveEntries()[:3]}
	v := NewLeaderboardView("u1", svc, quietLogger())

	require.NoError(t, v.Refresh(context.Background()))

	ranked, _, ensure := svc.calls()
	assert.Equal(t, 1, ensure)
	assert.Equal(t, 2, ranked, "re-fetch happens exactly once")
	snap := v.Snapshot()
	assert.Nil(t, snap.Me)
	assert.False(t, snap.IsRanked)
}

func TestRefresh_SectionsFailIndependently(t *testing.T) {
	svc := &fakeBoard{entries: fiveEntries(), top10Err: errors.New("timeout")}
	v := NewLeaderboardView("u1", svc, quietLogger())

	require.Error(t, v.Refresh(context.Background()))

	snap := v.Snapshot()
	assert.Empty(t, snap.ErrorTop3)
	assert.Len(t, snap.Top3, 3)
	assert.Equal(t, "Failed to load top 10 leaderboard: Something went wrong. Please try again.", snap.ErrorTop10)
	assert.Empty(t, snap.Top10)
}

func TestRun_RefreshesOnChangeEvent(t *testing.T) {
	svc := &fakeBoard{entries: fiveEntries()}
	v := NewLeaderboardView("u1", svc, quietLogger())
	broker := realtime.NewBroker(quietLogger())
	defer broker.Close()

	updates := make(chan LeaderboardSnapshot, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		v.Run(ctx, broker, time.Hour, func(s LeaderboardSnapshot) { updates <- s })
		close(done)
	}()

	first := <-updates
	assert.Len(t, first.Ranked, 5)

	svc.mu.Lock()
	svc.entries[3].Score = 500
	svc.entries[3].Rank = 1
	svc.mu.Unlock()

	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	broker.Publish(realtime.Event{Table: "leaderboard", Type: realtime.EventUpdate, UserID: "u1"})

	select {
	case s := <-updates:
		require.NotNil(t, s.Me)
		assert.Equal(t, 1, s.Me.Rank)
		assert.Equal(t, 20, s.TopPercent)
	case <-time.After(2 * time.Second):
		t.Fatal("no update after change event")
	}

	cancel()
	<-done
	assert.Zero(t, broker.Subscribers(), "Run must unsubscribe on exit")
}

func TestRun_TickerRefreshesTop10(t *testing.T) {
	svc := &fakeBoard{entries: fiveEntries()}
	v := NewLeaderboardView("u1", svc, quietLogger())
	broker := realtime.NewBroker(quietLogger())
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go v.Run(ctx, broker, 10*time.Millisecond, func(LeaderboardSnapshot) {})

	require.Eventually(t, func() bool {
		_, top10, _ := svc.calls()
		return top10 >= 3
	}, 2*time.Second, 5*time.Millisecond)
}
