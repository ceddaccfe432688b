package manager

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/grabfrom/core/internal/errors"
	"github.com/grabfrom/core/internal/fetch"
	"github.com/grabfrom/core/internal/metrics"
	"github.com/grabfrom/core/internal/paths"
	"github.com/grabfrom/core/internal/progress"
	"github.com/grabfrom/core/internal/task"
)

// runTask is the scheduler's Runner: it owns one admitted task from the
// pending→downloading transition until the entry is released.
func (m *Manager) runTask(ctx context.Context, taskID string) {
	e := m.lookup(taskID)
	if e == nil {
		return
	}

	e.mu.Lock()
	if e.task.Status != task.StatusPending {
		// Cancelled between admission and pickup.
		e.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.intent = intentNone
	e.running = true
	e.task.Status = task.StatusDownloading
	e.task.ErrorMessage = ""
	resume := cloneMarker(e.resume)
	t := *e.task
	e.mu.Unlock()

	dest := ""
	if resume != nil {
		dest = resume.Path
	}
	if dest == "" {
		dest = m.planDestination(&t)
	}

	e.mu.Lock()
	e.task.OutputPath = dest
	snap := e.task.Snapshot()
	e.mu.Unlock()

	req := fetch.Request{
		URL:          t.URL,
		FormatID:     t.FormatID,
		OutputFormat: t.OutputFormat,
		IncludeAudio: t.IncludeAudio,
		HasAudio:     t.HasAudio,
		HasVideo:     t.HasVideo,
		Destination:  dest,
		Resume:       resume,
	}

	m.log.Info(runCtx, "download started", map[string]interface{}{
		"task_id":     taskID,
		"destination": dest,
		"resumed":     resume != nil,
		"stages":      fetch.StagePlan(req),
	})
	m.notifyUpdate(snap)
	m.requestSnapshot()

	tracker := progress.NewTracker(m.notifyInterval)
	hooks := fetch.Hooks{
		OnProgress: func(downloaded, total int64) {
			m.onProgress(e, tracker, downloaded, total)
		},
		OnStage: func(stage task.Stage) {
			m.onStage(e, stage)
		},
	}

	res, err := m.engine.Run(runCtx, req, hooks)
	cancel()

	m.finish(ctx, e, res, err)
}

// onProgress folds a raw engine tick into the task and rate-limits the
// outward notification.
func (m *Manager) onProgress(e *entry, tracker *progress.Tracker, downloaded, total int64) {
	p, emit := tracker.Update(downloaded, total)

	e.mu.Lock()
	if e.task.Status != task.StatusDownloading {
		e.mu.Unlock()
		return
	}
	// Percent never regresses across a pause/resume boundary.
	if p.Percent < e.task.Progress.Percent {
		p.Percent = e.task.Progress.Percent
	}
	e.task.Progress = p
	var snap task.Snapshot
	if emit {
		snap = e.task.Snapshot()
	}
	e.mu.Unlock()

	if emit {
		m.notifyUpdate(snap)
	}
}

// onStage records a phase change. Stage events bypass the progress
// throttle.
func (m *Manager) onStage(e *entry, stage task.Stage) {
	e.mu.Lock()
	if e.task.Status != task.StatusDownloading {
		e.mu.Unlock()
		return
	}
	e.task.Stage = stage
	snap := e.task.Snapshot()
	e.mu.Unlock()

	m.notifyUpdate(snap)
}

// finish settles the entry after the engine returns. The recorded intent
// decides between pause bookkeeping, cancel cleanup, shutdown handover,
// failure, and completion.
func (m *Manager) finish(parent context.Context, e *entry, res *fetch.Result, runErr error) {
	e.mu.Lock()
	e.cancel = nil
	intent := e.intent
	e.intent = intentNone

	var (
		record  bool
		emit    bool
		cleanup string
	)

	switch {
	case intent == intentCancel:
		// Cancel already finalized status and history; discard leftovers.
		cleanup = e.task.OutputPath

	case intent == intentPause:
		if e.task.Status != task.StatusPaused {
			// A cancel overtook the pause while the engine wound down.
			cleanup = e.task.OutputPath
			e.resume = nil
			break
		}
		e.resume = &fetch.ResumeMarker{
			Path:            e.task.OutputPath,
			BytesDownloaded: e.task.Progress.BytesDownloaded,
		}
		e.task.Stage = ""
		e.task.Progress.Speed = 0
		e.task.Progress.ETASec = task.ETAUnknown
		emit = true

	case runErr != nil && parent.Err() != nil && errors.Is(runErr, context.Canceled):
		// Daemon shutdown. Leave the status as-is with a marker; the final
		// snapshot flush persists it and the next start demotes it back to
		// pending.
		e.resume = &fetch.ResumeMarker{
			Path:            e.task.OutputPath,
			BytesDownloaded: e.task.Progress.BytesDownloaded,
		}

	case runErr != nil:
		now := time.Now().UTC()
		e.task.Status = task.StatusFailed
		e.task.ErrorMessage = errorMessage(runErr)
		e.task.CompletedAt = &now
		e.task.Stage = ""
		e.task.Progress.Speed = 0
		e.task.Progress.ETASec = task.ETAUnknown
		e.resume = nil
		record, emit = true, true

	default:
		now := time.Now().UTC()
		e.task.Status = task.StatusCompleted
		e.task.OutputPath = res.OutputPath
		e.task.Progress.BytesDownloaded = res.FinalSize
		e.task.Progress.BytesTotal = res.FinalSize
		e.task.Progress.Percent = 100
		e.task.Progress.Speed = 0
		e.task.Progress.ETASec = 0
		e.task.CompletedAt = &now
		e.task.Stage = ""
		e.resume = nil
		record, emit = true, true
	}

	e.running = false
	e.cond.Broadcast()
	snap := e.task.Snapshot()
	taskCopy := *e.task
	status := e.task.Status
	e.mu.Unlock()

	if cleanup != "" {
		paths.CleanupPartials(cleanup)
	}
	if record {
		m.appendHistory(&taskCopy)
		switch status {
		case task.StatusCompleted:
			metrics.Default().IncCounter("tasks_completed")
		case task.StatusFailed:
			metrics.Default().IncCounter("tasks_failed")
		}
		m.log.Info(context.Background(), "download finished", map[string]interface{}{
			"task_id": taskCopy.ID,
			"status":  string(status),
			"output":  taskCopy.OutputPath,
			"error":   taskCopy.ErrorMessage,
		})
	}
	if emit {
		m.notifyUpdate(snap)
	}
	m.requestSnapshot()
}

// planDestination picks the download path for a fresh run: sanitized
// title plus the output extension, de-duplicated against disk.
func (m *Manager) planDestination(t *task.Task) string {
	name := paths.SanitizeFilename(t.Title)
	ext := strings.ToLower(t.OutputFormat)
	return paths.UniquePath(m.downloadDir, name+"."+ext)
}

// errorMessage extracts the user-facing message from a run error.
func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
