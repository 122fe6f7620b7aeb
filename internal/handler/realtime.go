package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/auth"
	"github.com/sakif/mentorflow/internal/controller"
	"github.com/sakif/mentorflow/internal/metrics"
	"github.com/sakif/mentorflow/internal/realtime"
)

// Tables a client may watch.
var watchable = map[string]bool{
	"tasks":         true,
	"user_tasks":    true,
	"profiles":      true,
	"leaderboard":   true,
	"notifications": true,
}

// RealtimeHandler bridges the change feed and the leaderboard controller to
// WebSocket clients.
//
// STREAMS:
//   - GET /api/realtime?table=...        change events, scoped to the caller
//   - GET /api/admin/realtime?table=...  change events for every user (admin)
//   - GET /api/leaderboard/stream        leaderboard snapshots, pushed on
//     every refresh
type RealtimeHandler struct {
	feed        controller.Subscriber
	leaderboard controller.LeaderboardService
	upgrader    *websocket.Upgrader
	interval    time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewRealtimeHandler(
	feed controller.Subscriber,
	leaderboard controller.LeaderboardService,
	upgrader *websocket.Upgrader,
	refreshInterval time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *RealtimeHandler {
	if refreshInterval <= 0 {
		refreshInterval = controller.DefaultRefreshInterval
	}
	return &RealtimeHandler{
		feed:        feed,
		leaderboard: leaderboard,
		upgrader:    upgrader,
		interval:    refreshInterval,
		metrics:     m,
		logger:      logger,
	}
}

// HandleLeaderboard returns one leaderboard snapshot for the caller. The
// ranked list and the top 10 fail independently; a failed section carries
// its error string and the response is still 200.
//
// HTTP: GET /api/leaderboard
func (h *RealtimeHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("no session"))
		return
	}

	view := controller.NewLeaderboardView(userID, h.leaderboard, h.logger)
	if err := view.Refresh(r.Context()); err != nil && r.Context().Err() != nil {
		return
	}
	writeJSON(w, http.StatusOK, view.Snapshot())
}

// HandleLeaderboardStream pushes a fresh snapshot after every refresh:
// immediately, on a fixed interval and on every leaderboard change.
//
// HTTP: GET /api/leaderboard/stream (WebSocket)
func (h *RealtimeHandler) HandleLeaderboardStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("no session"))
		return
	}

	stream, err := realtime.Accept(w, r, h.upgrader, h.logger)
	if err != nil {
		h.logger.Warn("leaderboard stream: upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer h.metrics.StreamOpened()()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	view := controller.NewLeaderboardView(userID, h.leaderboard, h.logger)
	go func() {
		<-stream.Done()
		cancel()
	}()
	go view.Run(ctx, h.feed, h.interval, func(s controller.LeaderboardSnapshot) {
		stream.Send("leaderboard", s)
	})

	stream.Run(ctx)
}

// HandleStream relays change events on one table, limited to the caller's
// own rows.
//
// HTTP: GET /api/realtime?table=notifications (WebSocket)
func (h *RealtimeHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("no session"))
		return
	}
	h.stream(w, r, userID)
}

// HandleAdminStream relays change events on one table for every user.
//
// HTTP: GET /api/admin/realtime?table=user_tasks (WebSocket)
func (h *RealtimeHandler) HandleAdminStream(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "")
}

func (h *RealtimeHandler) stream(w http.ResponseWriter, r *http.Request, scope string) {
	table := r.URL.Query().Get("table")
	if !watchable[table] {
		writeError(w, apperror.ValidationFailed("table", "unknown table "+table))
		return
	}

	filter := realtime.Filter{
		Table:  table,
		Type:   realtime.EventType(r.URL.Query().Get("event")),
		UserID: scope,
	}
	// Template and ranking changes are the same for everyone.
	if table == "tasks" || table == "leaderboard" {
		filter.UserID = ""
	}

	stream, err := realtime.Accept(w, r, h.upgrader, h.logger)
	if err != nil {
		h.logger.Warn("realtime stream: upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer h.metrics.StreamOpened()()

	sub := h.feed.Subscribe("ws:"+table, filter, func(e realtime.Event) {
		stream.Send("change", e)
	})
	defer sub.Unsubscribe()

	stream.Run(r.Context())
}
