package handlers

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/tasktracker/apiserver/internal/services"
	"github.com/tasktracker/apiserver/types"
)

// TaskHandler provides HTTP handlers for tasks.
type TaskHandler struct {
	tasks    *services.TaskService
	pageSize int
	logger   *log.Logger
}

func NewTaskHandler(tasks *services.TaskService, pageSize int, logger *log.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, pageSize: pageSize, logger: logger}
}

// TaskRouter registers task routes. authMiddleware must run first.
func TaskRouter(r chi.Router, tasks *services.TaskService, attachments *services.AttachmentService, pageSize int, logger *log.Logger) {
	handler := NewTaskHandler(tasks, pageSize, logger)

	r.Get("/", handler.ListTasks)
	r.Post("/", handler.CreateTask)
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Put("/", handler.UpdateTask)
		r.Patch("/", handler.PatchTask)
		r.Delete("/", handler.DeleteTask)
		r.Post("/mark_completed", handler.MarkCompleted)
		r.Route("/attachments", func(r chi.Router) {
			AttachmentRouter(r, attachments, logger)
		})
	})
}

// ListTasks returns one page of the caller's tasks, optionally restricted
// to an exact status.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	page, offset, err := parsePage(r, h.pageSize)
	if err != nil {
		writeError(w, http.StatusNotFound, msgInvalidPage)
		return
	}
	filter := types.TaskFilter{Status: types.TaskStatus(strings.TrimSpace(r.URL.Query().Get("status")))}

	items, total, err := h.tasks.List(r.Context(), actor, filter, offset, h.pageSize)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list tasks")
		return
	}
	if pageOutOfRange(offset, total) {
		writeError(w, http.StatusNotFound, msgInvalidPage)
		return
	}

	writeJSON(w, http.StatusOK, PageResponse[types.Task]{
		Items: items,
		Page:  page,
		Limit: h.pageSize,
		Total: total,
	})
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	var req TaskRequest
	if !readJSON(w, r, h.logger, schemaTask, &req) {
		return
	}

	created, err := h.tasks.Create(r.Context(), actor, req.input())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to create task")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Get(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to fetch task")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

func (h *TaskHandler) PatchTask(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *TaskHandler) update(w http.ResponseWriter, r *http.Request, partial bool) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req TaskRequest
	if !readJSON(w, r, h.logger, schemaTask, &req) {
		return
	}

	updated, err := h.tasks.Update(r.Context(), actor, id, req.input(), partial)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// MarkCompleted sets the task status to Completed. It takes no body.
func (h *TaskHandler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}

	updated, err := h.tasks.MarkCompleted(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}

	if err := h.tasks.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to delete task")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) target(w http.ResponseWriter, r *http.Request) (types.Account, int, bool) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return types.Account{}, 0, false
	}
	id, err := parseID(r, "taskID")
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return types.Account{}, 0, false
	}
	return actor, id, true
}

// TaskRequest carries the writable task fields. Any other field in the
// payload, such as owner or created_at, is ignored.
type TaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

func (req TaskRequest) input() services.TaskInput {
	return services.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, logger *log.Logger) (types.Account, bool) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeServiceError(w, r, logger, services.ErrUnauthenticated, "unauthorized")
	}
	return account, ok
}
