package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
)

// Admin page messages.
const (
	MsgTemplateCreated  = "Task template created successfully!"
	MsgTemplateUpdated  = "Task template updated successfully!"
	MsgTemplateDeleted  = "Task template deleted successfully!"
	MsgAnnouncementSent = "Notification sent successfully to all normal users!"
)

// AdminTaskService is the part of service.TaskService the admin page needs.
type AdminTaskService interface {
	ListTemplates(ctx context.Context) ([]model.Task, error)
	CreateTemplate(ctx context.Context, t *model.Task) error
	UpdateTemplate(ctx context.Context, t *model.Task) error
	DeleteTemplate(ctx context.Context, id string) error
	ListPendingReview(ctx context.Context) ([]model.PendingReview, error)
	Approve(ctx context.Context, userTaskID string) error
	Reject(ctx context.Context, userTaskID, feedback string) error
}

// Broadcaster sends an announcement to every student.
type Broadcaster interface {
	Broadcast(ctx context.Context, title, message string) (int, error)
}

// AdminHandler serves the admin dashboard: task templates, the review
// queue and announcements. Every route sits behind the admin role guard.
type AdminHandler struct {
	tasks         AdminTaskService
	notifications Broadcaster
	logger        *slog.Logger
}

func NewAdminHandler(tasks AdminTaskService, notifications Broadcaster, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{tasks: tasks, notifications: notifications, logger: logger}
}

type templateResponse struct {
	Message string      `json:"message"`
	Task    *model.Task `json:"task"`
}

// HandleListTemplates returns every task template.
//
// HTTP: GET /api/admin/tasks
func (h *AdminHandler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.ListTemplates(r.Context())
	if err != nil {
		logFailure(h.logger, "list templates", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// HandleCreateTemplate adds a task template.
//
// HTTP: POST /api/admin/tasks
// REQUEST BODY: {"title", "description", "points", "due_date", "tasks_url"}
func (h *AdminHandler) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t model.Task
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, err)
		return
	}
	t.ID = ""

	if err := h.tasks.CreateTemplate(r.Context(), &t); err != nil {
		logFailure(h.logger, "create template", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, templateResponse{Message: MsgTemplateCreated, Task: &t})
}

// HandleUpdateTemplate replaces a template's fields.
//
// HTTP: PUT /api/admin/tasks/{id}
func (h *AdminHandler) HandleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var t model.Task
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, err)
		return
	}
	t.ID = r.PathValue("id")

	if err := h.tasks.UpdateTemplate(r.Context(), &t); err != nil {
		logFailure(h.logger, "update template", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templateResponse{Message: MsgTemplateUpdated, Task: &t})
}

// HandleDeleteTemplate removes a template. Students who started it keep
// their progress row.
//
// HTTP: DELETE /api/admin/tasks/{id}
func (h *AdminHandler) HandleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, apperror.ValidationFailed("id", "template id is required"))
		return
	}

	if err := h.tasks.DeleteTemplate(r.Context(), id); err != nil {
		logFailure(h.logger, "delete template", err)
		writeError(w, err)
		return
	}
	writeMessage(w, MsgTemplateDeleted)
}

// HandlePending returns submissions waiting for review, oldest first.
//
// HTTP: GET /api/admin/reviews
func (h *AdminHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.tasks.ListPendingReview(r.Context())
	if err != nil {
		logFailure(h.logger, "list pending reviews", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// HandleApprove credits the template's points to the submitter.
//
// HTTP: POST /api/admin/reviews/{id}/approve
func (h *AdminHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	review := h.findPending(r.Context(), id)

	if err := h.tasks.Approve(r.Context(), id); err != nil {
		logFailure(h.logger, "approve task", err)
		writeError(w, err)
		return
	}
	writeMessage(w, decisionMessage(review, "approved"))
}

// HandleReject sends a submission back with feedback.
//
// HTTP: POST /api/admin/reviews/{id}/reject
// REQUEST BODY: {"feedback": "..."}
func (h *AdminHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Feedback string `json:"feedback"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	review := h.findPending(r.Context(), id)

	if err := h.tasks.Reject(r.Context(), id, req.Feedback); err != nil {
		logFailure(h.logger, "reject task", err)
		writeError(w, err)
		return
	}
	writeMessage(w, decisionMessage(review, "rejected"))
}

// HandleAnnounce sends an announcement to every student.
//
// HTTP: POST /api/admin/announcements
// REQUEST BODY: {"title": "...", "message": "..."}
func (h *AdminHandler) HandleAnnounce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	n, err := h.notifications.Broadcast(r.Context(), req.Title, req.Message)
	if err != nil {
		logFailure(h.logger, "send announcement", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message    string `json:"message"`
		Recipients int    `json:"recipients"`
	}{MsgAnnouncementSent, n})
}

// findPending looks up the review row so the success message can name the
// task and the student. A lookup failure only costs the nicer message.
func (h *AdminHandler) findPending(ctx context.Context, userTaskID string) *model.PendingReview {
	pending, err := h.tasks.ListPendingReview(ctx)
	if err != nil {
		return nil
	}
	for i := range pending {
		if pending[i].UserTaskID == userTaskID {
			return &pending[i]
		}
	}
	return nil
}

func decisionMessage(review *model.PendingReview, verb string) string {
	if review == nil {
		return fmt.Sprintf("Task %s.", verb)
	}
	return fmt.Sprintf("Task \"%s\" %s for %s.", review.TaskTitle, verb, review.FullName)
}
