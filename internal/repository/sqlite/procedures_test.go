package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/ranking"
)

// submitted creates a user with a profile and a task submitted for review.
func submitted(t *testing.T, db *DB, email string, points int) (*model.User, *model.UserTask) {
	t.Helper()
	ctx := context.Background()
	u := createTestUser(t, db, email)
	createTestProfile(t, db, u.ID, email)
	task := createTestTask(t, db, "Task for "+email, points)
	ut, err := db.StartUserTask(ctx, u.ID, task.ID)
	if err != nil {
		t.Fatalf("StartUserTask() error = %v", err)
	}
	if _, err := db.SubmitUserTask(ctx, ut.ID, time.Now()); err != nil {
		t.Fatalf("SubmitUserTask() error = %v", err)
	}
	return u, ut
}

// =========================================================================
// APPROVE TESTS
// =========================================================================

func TestApproveTaskAndUpdateScore(t *testing.T) {
	pub := &recordingPublisher{}
	db := newTestDB(t, WithPublisher(pub))
	ctx := context.Background()
	u, ut := submitted(t, db, "a@example.com", 30)

	if err := db.ApproveTaskAndUpdateScore(ctx, ut.ID, u.ID, 30); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	got, _ := db.GetUserTask(ctx, ut.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}

	ranked, err := db.LeaderboardWithRank(ctx)
	if err != nil {
		t.Fatalf("LeaderboardWithRank() error = %v", err)
	}
	if len(ranked) != 1 || ranked[0].Score != 30 {
		t.Fatalf("ranked = %+v, want one row with 30 points", ranked)
	}

	notes, _ := db.ListNotifications(ctx, u.ID)
	if len(notes) != 1 || notes[0].Type != model.NotificationTaskApproved {
		t.Fatalf("notifications = %+v, want one task_approved", notes)
	}
	if notes[0].TaskID == nil || *notes[0].TaskID != ut.TaskID {
		t.Errorf("notification TaskID = %v, want %s", notes[0].TaskID, ut.TaskID)
	}

	events := pub.tables()
	last := events[len(events)-3:]
	want := []string{"user_tasks:UPDATE", "leaderboard:UPDATE", "notifications:INSERT"}
	for i := range want {
		if last[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, last[i], want[i])
		}
	}
}

func TestApprove_TwiceCreditsOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u, ut := submitted(t, db, "a@example.com", 30)

	if err := db.ApproveTaskAndUpdateScore(ctx, ut.ID, u.ID, 30); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	err := db.ApproveTaskAndUpdateScore(ctx, ut.ID, u.ID, 30)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second Approve() error = %v, want ErrConflict", err)
	}

	ranked, _ := db.LeaderboardWithRank(ctx)
	if ranked[0].Score != 30 {
		t.Errorf("Score = %d, want 30 (no double credit)", ranked[0].Score)
	}
	notes, _ := db.ListNotifications(ctx, u.ID)
	if len(notes) != 1 {
		t.Errorf("len(notifications) = %d, want 1 (rollback leaves no extra row)", len(notes))
	}
}

func TestApprove_WrongUserRejected(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, ut := submitted(t, db, "a@example.com", 30)
	other := createTestUser(t, db, "b@example.com")

	err := db.ApproveTaskAndUpdateScore(ctx, ut.ID, other.ID, 30)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestApprove_NegativePoints(t *testing.T) {
	db := newTestDB(t)
	u, ut := submitted(t, db, "a@example.com", 30)
	err := db.ApproveTaskAndUpdateScore(context.Background(), ut.ID, u.ID, -5)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// REJECT TESTS
// =========================================================================

func TestRejectTaskWithFeedback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u, ut := submitted(t, db, "a@example.com", 30)

	if err := db.RejectTaskWithFeedback(ctx, ut.ID, "Add screenshots"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	got, _ := db.GetUserTask(ctx, ut.ID)
	if got.Status != model.StatusRejected || got.RejectionMessage != "Add screenshots" {
		t.Errorf("user task = %+v", got)
	}
	notes, _ := db.ListNotifications(ctx, u.ID)
	if len(notes) != 1 || notes[0].Type != model.NotificationTaskRejected {
		t.Errorf("notifications = %+v, want one task_rejected", notes)
	}
}

func TestReject_DeletedTemplateUsesFallbackTitle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u, ut := submitted(t, db, "a@example.com", 30)
	if err := db.DeleteTask(ctx, ut.TaskID); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}

	if err := db.RejectTaskWithFeedback(ctx, ut.ID, "gone"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	notes, _ := db.ListNotifications(ctx, u.ID)
	if len(notes) != 1 {
		t.Fatalf("len(notifications) = %d", len(notes))
	}
	want := `Your task "Task details not found" was rejected: gone`
	if notes[0].Message != want {
		t.Errorf("Message = %q, want %q", notes[0].Message, want)
	}
}

// =========================================================================
// LEADERBOARD / BROADCAST TESTS
// =========================================================================

func TestLeaderboardWithRank_TiesShareRank(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	scores := map[string]int{"a@example.com": 120, "b@example.com": 120, "c@example.com": 15}
	for email, pts := range scores {
		u, ut := submitted(t, db, email, pts)
		if err := db.ApproveTaskAndUpdateScore(ctx, ut.ID, u.ID, pts); err != nil {
			t.Fatalf("Approve() error = %v", err)
		}
	}
	zero := createTestUser(t, db, "z@example.com")
	if err := db.EnsureLeaderboardEntry(ctx, zero.ID); err != nil {
		t.Fatalf("EnsureLeaderboardEntry() error = %v", err)
	}
	// Idempotent.
	if err := db.EnsureLeaderboardEntry(ctx, zero.ID); err != nil {
		t.Fatalf("second EnsureLeaderboardEntry() error = %v", err)
	}

	ranked, err := db.LeaderboardWithRank(ctx)
	if err != nil {
		t.Fatalf("LeaderboardWithRank() error = %v", err)
	}
	if len(ranked) != 4 {
		t.Fatalf("len(ranked) = %d, want 4", len(ranked))
	}
	wantRanks := []int{1, 1, 3, 4}
	for i, e := range ranked {
		if e.Rank != wantRanks[i] {
			t.Errorf("ranked[%d].Rank = %d, want %d", i, e.Rank, wantRanks[i])
		}
	}
	if ranked[0].League != "Learner" || ranked[0].BadgeDivision != 2 {
		t.Errorf("120 points badge = %s/%d, want Learner/2", ranked[0].League, ranked[0].BadgeDivision)
	}
	if ranked[3].League != ranking.Unranked {
		t.Errorf("0 points league = %s, want Unranked", ranked[3].League)
	}

	top, err := db.LeaderboardTop10(ctx)
	if err != nil || len(top) != 4 {
		t.Errorf("LeaderboardTop10() = %d rows, %v", len(top), err)
	}
}

func TestSendAdminNotification(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "a@example.com")
	b := createTestUser(t, db, "b@example.com")
	createTestProfile(t, db, a.ID, "A")
	createTestProfile(t, db, b.ID, "B")
	createTestUser(t, db, "noprofile@example.com")
	admin := createTestUser(t, db, "admin@example.com")
	createTestProfile(t, db, admin.ID, "Admin")
	if err := db.SetProfileRole(ctx, admin.ID, model.RoleAdmin); err != nil {
		t.Fatalf("SetProfileRole() error = %v", err)
	}

	n, err := db.SendAdminNotification(ctx, "Hackathon", "Friday 6pm")
	if err != nil {
		t.Fatalf("SendAdminNotification() error = %v", err)
	}
	if n != 2 {
		t.Errorf("sent = %d, want 2 (one per student profile)", n)
	}

	notes, _ := db.ListNotifications(ctx, b.ID)
	if len(notes) != 1 || notes[0].Type != model.NotificationAdmin || notes[0].Title != "Hackathon" {
		t.Errorf("notifications = %+v", notes)
	}
	if adminNotes, _ := db.ListNotifications(ctx, admin.ID); len(adminNotes) != 0 {
		t.Errorf("admin received %d notifications, want 0", len(adminNotes))
	}
}
