package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/grabfrom/core/internal/errors"
	"github.com/grabfrom/core/internal/manager"
	"github.com/grabfrom/core/internal/notify"
	"github.com/grabfrom/core/internal/task"
)

type TaskHandlers struct {
	manager *manager.Manager
}

func NewTaskHandlers(m *manager.Manager) *TaskHandlers {
	return &TaskHandlers{manager: m}
}

// ListTasksResponse wraps the live task table with queue occupancy.
type ListTasksResponse struct {
	Tasks []task.Snapshot   `json:"tasks"`
	Queue notify.QueueState `json:"queue"`
}

// ClearCompletedResponse reports how many tasks were swept.
type ClearCompletedResponse struct {
	Count int `json:"count"`
}

// Create handles POST /api/v1/tasks
func (h *TaskHandlers) Create(w http.ResponseWriter, r *http.Request) error {
	var req task.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.InvalidRequest("invalid request body")
	}

	snap, err := h.manager.Submit(req)
	if err != nil {
		return err
	}
	return writeJSON(w, r, http.StatusCreated, snap)
}

// List handles GET /api/v1/tasks
func (h *TaskHandlers) List(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, r, http.StatusOK, ListTasksResponse{
		Tasks: h.manager.List(),
		Queue: h.manager.QueueState(),
	})
}

// Get handles GET /api/v1/tasks/{task_id}
func (h *TaskHandlers) Get(w http.ResponseWriter, r *http.Request) error {
	snap, err := h.manager.Get(r.PathValue("task_id"))
	if err != nil {
		return err
	}
	return writeJSON(w, r, http.StatusOK, snap)
}

// Pause handles POST /api/v1/tasks/{task_id}/pause
func (h *TaskHandlers) Pause(w http.ResponseWriter, r *http.Request) error {
	snap, err := h.manager.Pause(r.PathValue("task_id"))
	if err != nil {
		return err
	}
	return writeJSON(w, r, http.StatusOK, snap)
}

// Resume handles POST /api/v1/tasks/{task_id}/resume
func (h *TaskHandlers) Resume(w http.ResponseWriter, r *http.Request) error {
	snap, err := h.manager.Resume(r.PathValue("task_id"))
	if err != nil {
		return err
	}
	return writeJSON(w, r, http.StatusOK, snap)
}

// Cancel handles POST /api/v1/tasks/{task_id}/cancel
func (h *TaskHandlers) Cancel(w http.ResponseWriter, r *http.Request) error {
	snap, err := h.manager.Cancel(r.PathValue("task_id"))
	if err != nil {
		return err
	}
	return writeJSON(w, r, http.StatusOK, snap)
}

// Remove handles DELETE /api/v1/tasks/{task_id}
func (h *TaskHandlers) Remove(w http.ResponseWriter, r *http.Request) error {
	if err := h.manager.Remove(r.PathValue("task_id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// ClearCompleted handles POST /api/v1/tasks/clear-completed
func (h *TaskHandlers) ClearCompleted(w http.ResponseWriter, r *http.Request) error {
	count := h.manager.ClearCompleted()
	return writeJSON(w, r, http.StatusOK, ClearCompletedResponse{Count: count})
}

// OpenFolder handles POST /api/v1/tasks/{task_id}/open-folder
func (h *TaskHandlers) OpenFolder(w http.ResponseWriter, r *http.Request) error {
	if err := h.manager.OpenFolder(r.PathValue("task_id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
