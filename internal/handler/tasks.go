package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/auth"
	"github.com/sakif/mentorflow/internal/controller"
)

// Boards hands out the per-user task board. *controller.Registry
// implements it.
type Boards interface {
	Board(userID string) (board *controller.TaskBoard, fresh bool)
}

// TaskHandler drives the student task page through the caller's
// controller.TaskBoard. Every endpoint answers with the board snapshot so
// the client always renders server state.
type TaskHandler struct {
	boards Boards
	logger *slog.Logger
}

func NewTaskHandler(boards Boards, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{boards: boards, logger: logger}
}

// boardResponse is a snapshot, plus the proof-of-work mail link when the
// student answered "not yet" on the confirm step.
type boardResponse struct {
	controller.BoardSnapshot
	Mailto string `json:"mailto,omitempty"`
}

// boardFailure carries the board alongside the error so the page can show
// the surfaced message in place.
type boardFailure struct {
	ErrorResponse
	Board controller.BoardSnapshot `json:"board"`
}

func (h *TaskHandler) board(w http.ResponseWriter, r *http.Request) (b *controller.TaskBoard, fresh, ok bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("no session"))
		return nil, false, false
	}
	b, fresh = h.boards.Board(userID)
	return b, fresh, true
}

// respond writes the board state after an action. A nil err is 200.
func (h *TaskHandler) respond(w http.ResponseWriter, r *http.Request, b *controller.TaskBoard, mailto string, err error) {
	snap := b.Snapshot()
	if err == nil {
		writeJSON(w, http.StatusOK, boardResponse{BoardSnapshot: snap, Mailto: mailto})
		return
	}
	if apperror.IsCanceled(err) || r.Context().Err() != nil {
		return
	}

	logFailure(h.logger, "task board", err)
	status, errorType := statusFor(err)
	msg := snap.Error
	if msg == "" {
		msg = apperror.Friendly(err, "Something went wrong. Please try again.")
	}
	writeJSON(w, status, boardFailure{
		ErrorResponse: ErrorResponse{Error: errorType, Message: msg},
		Board:         snap,
	})
}

// HandleList loads the task list merged with the caller's progress.
//
// HTTP: GET /api/tasks
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	b, _, ok := h.board(w, r)
	if !ok {
		return
	}
	err := b.Load(r.Context())
	h.respond(w, r, b, "", err)
}

// HandleSelect opens one task's details.
//
// HTTP: POST /api/tasks/{id}/select
func (h *TaskHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	b, fresh, ok := h.board(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		writeError(w, apperror.ValidationFailed("id", "task id is required"))
		return
	}

	// A new or evicted board has nothing to select from yet.
	if fresh {
		if err := b.Load(r.Context()); err != nil {
			h.respond(w, r, b, "", err)
			return
		}
	}
	h.respond(w, r, b, "", b.Select(id))
}

// HandleClose dismisses the details view.
//
// HTTP: DELETE /api/tasks/selected
func (h *TaskHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	b, _, ok := h.board(w, r)
	if !ok {
		return
	}
	b.Close()
	h.respond(w, r, b, "", nil)
}

// HandleAdvance moves the selected task one step forward: start it, or open
// the proof-of-work confirmation.
//
// HTTP: POST /api/tasks/advance
func (h *TaskHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	b, _, ok := h.board(w, r)
	if !ok {
		return
	}
	h.respond(w, r, b, "", b.Advance(r.Context()))
}

// HandleConfirm answers the "have you sent your proof of work?" step.
//
// HTTP: POST /api/tasks/confirm
// REQUEST BODY: {"sent": true}
func (h *TaskHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	b, _, ok := h.board(w, r)
	if !ok {
		return
	}

	var req struct {
		Sent bool `json:"sent"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	mailto, err := b.Confirm(r.Context(), req.Sent)
	h.respond(w, r, b, mailto, err)
}

// HandleRetry sends the selected rejected task back to in progress.
//
// HTTP: POST /api/tasks/retry
func (h *TaskHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	b, _, ok := h.board(w, r)
	if !ok {
		return
	}
	h.respond(w, r, b, "", b.Retry(r.Context()))
}
