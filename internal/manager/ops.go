package manager

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/grabfrom/core/internal/errors"
	"github.com/grabfrom/core/internal/metrics"
	"github.com/grabfrom/core/internal/notify"
	"github.com/grabfrom/core/internal/paths"
	"github.com/grabfrom/core/internal/task"
)

// validOutputFormats are the containers the fetch engine can produce.
var validOutputFormats = map[string]bool{
	"mp4":  true,
	"webm": true,
	"mkv":  true,
	"mp3":  true,
	"m4a":  true,
	"flac": true,
	"opus": true,
	"wav":  true,
}

// Submit validates a request, creates a pending task, and queues it.
// It never touches the network; metadata comes from an earlier resolve.
func (m *Manager) Submit(req task.Request) (task.Snapshot, error) {
	if strings.TrimSpace(req.URL) == "" {
		return task.Snapshot{}, apperrors.InvalidRequest("url is required")
	}
	if strings.TrimSpace(req.FormatID) == "" {
		return task.Snapshot{}, apperrors.InvalidRequest("format_id is required")
	}
	if req.OutputFormat == "" {
		req.OutputFormat = "mp4"
	}
	if !validOutputFormats[strings.ToLower(req.OutputFormat)] {
		return task.Snapshot{}, apperrors.InvalidRequest(fmt.Sprintf("unsupported output format %q", req.OutputFormat))
	}

	t := task.New(req)
	e := newEntry(t)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return task.Snapshot{}, apperrors.ShuttingDown()
	}
	m.tasks[t.ID] = e
	m.order = append(m.order, t.ID)
	m.mu.Unlock()

	// Snapshot before enqueueing: once the scheduler has the id a worker
	// may start mutating the entry, and the response should show the task
	// as created.
	e.mu.Lock()
	snap := e.task.Snapshot()
	e.mu.Unlock()

	if !m.sched.Enqueue(t.ID) {
		m.mu.Lock()
		delete(m.tasks, t.ID)
		m.removeFromOrderLocked(t.ID)
		m.mu.Unlock()
		return task.Snapshot{}, apperrors.ShuttingDown()
	}

	m.log.Info(context.Background(), "task submitted", map[string]interface{}{
		"task_id":  t.ID,
		"url":      t.URL,
		"platform": t.Platform,
		"format":   t.OutputFormat,
	})
	m.notifyUpdate(snap)
	m.requestSnapshot()
	return snap, nil
}

// Pause requests a cooperative stop of an active download. The status
// flips immediately; the worker records the resume marker once the
// engine lets go.
func (m *Manager) Pause(id string) (task.Snapshot, error) {
	e := m.lookup(id)
	if e == nil {
		return task.Snapshot{}, apperrors.TaskNotFound(id)
	}

	e.mu.Lock()
	from := e.task.Status
	if !task.CanTransition(from, task.StatusPaused) {
		e.mu.Unlock()
		return task.Snapshot{}, apperrors.IllegalTransition(string(from), string(task.StatusPaused))
	}
	e.task.Status = task.StatusPaused
	e.intent = intentPause
	if e.cancel != nil {
		e.cancel()
	}
	snap := e.task.Snapshot()
	e.mu.Unlock()

	m.log.Info(context.Background(), "task paused", map[string]interface{}{"task_id": id})
	m.notifyUpdate(snap)
	m.requestSnapshot()
	return snap, nil
}

// Resume puts a paused task back in the queue. It re-enters at the tail,
// keyed by the resume request time, and continues from the recorded
// marker once admitted.
func (m *Manager) Resume(id string) (task.Snapshot, error) {
	e := m.lookup(id)
	if e == nil {
		return task.Snapshot{}, apperrors.TaskNotFound(id)
	}

	e.mu.Lock()
	if !task.CanTransition(e.task.Status, task.StatusPending) {
		from := e.task.Status
		e.mu.Unlock()
		return task.Snapshot{}, apperrors.IllegalTransition(string(from), string(task.StatusPending))
	}
	// The previous run may still be winding down after the pause; wait for
	// it to release the entry so the resume marker is in place.
	for e.running {
		e.cond.Wait()
	}
	if !task.CanTransition(e.task.Status, task.StatusPending) {
		from := e.task.Status
		e.mu.Unlock()
		return task.Snapshot{}, apperrors.IllegalTransition(string(from), string(task.StatusPending))
	}
	e.task.Status = task.StatusPending
	snap := e.task.Snapshot()
	e.mu.Unlock()

	if !m.sched.Enqueue(id) {
		e.mu.Lock()
		e.task.Status = task.StatusPaused
		e.mu.Unlock()
		return task.Snapshot{}, apperrors.ShuttingDown()
	}

	m.log.Info(context.Background(), "task resumed", map[string]interface{}{"task_id": id})
	m.notifyUpdate(snap)
	m.requestSnapshot()
	return snap, nil
}

// Cancel stops a pending, downloading, or paused task and discards its
// partial data. The transition is immediate; an interrupted worker
// cleans up after the engine returns.
func (m *Manager) Cancel(id string) (task.Snapshot, error) {
	e := m.lookup(id)
	if e == nil {
		return task.Snapshot{}, apperrors.TaskNotFound(id)
	}

	e.mu.Lock()
	from := e.task.Status
	if !task.CanTransition(from, task.StatusCancelled) {
		e.mu.Unlock()
		return task.Snapshot{}, apperrors.IllegalTransition(string(from), string(task.StatusCancelled))
	}

	switch from {
	case task.StatusPending:
		m.sched.Withdraw(id)
	case task.StatusDownloading:
		e.intent = intentCancel
		if e.cancel != nil {
			e.cancel()
		}
	}

	now := time.Now().UTC()
	e.task.Status = task.StatusCancelled
	e.task.CompletedAt = &now
	e.task.Stage = ""
	e.task.Progress.Speed = 0
	e.task.Progress.ETASec = task.ETAUnknown
	e.resume = nil

	cleanup := ""
	if from != task.StatusDownloading && !e.running {
		// An interrupted worker discards its own partials; for parked tasks
		// nobody else will.
		cleanup = e.task.OutputPath
	}
	snap := e.task.Snapshot()
	taskCopy := *e.task
	e.mu.Unlock()

	if cleanup != "" {
		paths.CleanupPartials(cleanup)
	}
	m.appendHistory(&taskCopy)
	metrics.Default().IncCounter("tasks_cancelled")

	m.log.Info(context.Background(), "task cancelled", map[string]interface{}{
		"task_id": id,
		"from":    string(from),
	})
	m.notifyUpdate(snap)
	m.requestSnapshot()
	return snap, nil
}

// Remove drops a terminal task from the table. The history record stays.
func (m *Manager) Remove(id string) error {
	e := m.lookup(id)
	if e == nil {
		return apperrors.TaskNotFound(id)
	}

	e.mu.Lock()
	if !e.task.Status.Terminal() {
		from := e.task.Status
		e.mu.Unlock()
		return apperrors.InvalidRequest(fmt.Sprintf("cannot remove task in status %q; cancel it first", from))
	}
	for e.running {
		e.cond.Wait()
	}
	e.mu.Unlock()

	m.mu.Lock()
	delete(m.tasks, id)
	m.removeFromOrderLocked(id)
	m.mu.Unlock()

	m.log.Info(context.Background(), "task removed", map[string]interface{}{"task_id": id})
	m.notifier.Publish(notify.TaskRemoved(id))
	return nil
}

// Get returns a snapshot of one task.
func (m *Manager) Get(id string) (task.Snapshot, error) {
	e := m.lookup(id)
	if e == nil {
		return task.Snapshot{}, apperrors.TaskNotFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Snapshot(), nil
}

// List returns snapshots of every task in submission order.
func (m *Manager) List() []task.Snapshot {
	entries := m.liveEntries()
	snaps := make([]task.Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snaps = append(snaps, e.task.Snapshot())
		e.mu.Unlock()
	}
	return snaps
}

// ClearCompleted removes every completed task from the table and returns
// how many were dropped. Failed and cancelled tasks stay until removed
// individually.
func (m *Manager) ClearCompleted() int {
	entries := m.liveEntries()

	var removed []string
	for _, e := range entries {
		e.mu.Lock()
		if e.task.Status == task.StatusCompleted && !e.running {
			removed = append(removed, e.task.ID)
		}
		e.mu.Unlock()
	}
	if len(removed) == 0 {
		return 0
	}

	m.mu.Lock()
	for _, id := range removed {
		delete(m.tasks, id)
		m.removeFromOrderLocked(id)
	}
	m.mu.Unlock()

	m.log.Info(context.Background(), "cleared completed tasks", map[string]interface{}{
		"count": len(removed),
	})
	m.notifier.Publish(notify.TasksCleared(removed))
	return len(removed)
}

// OpenFolder reveals the folder holding a task's output file in the
// platform file manager.
func (m *Manager) OpenFolder(id string) error {
	e := m.lookup(id)
	if e == nil {
		return apperrors.TaskNotFound(id)
	}

	e.mu.Lock()
	out := e.task.OutputPath
	e.mu.Unlock()

	if out == "" {
		return apperrors.InvalidRequest("task has no output file yet")
	}
	if err := paths.OpenFolder(filepath.Dir(out)); err != nil {
		return apperrors.NotFound("output folder")
	}
	return nil
}
