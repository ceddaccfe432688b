package api

import (
	"net/http"
	"testing"

	apperrors "github.com/grabfrom/core/internal/errors"
	"github.com/grabfrom/core/internal/task"
)

func submitBody(url string) map[string]any {
	return map[string]any{
		"url":           url,
		"format_id":     "137",
		"output_format": "mp4",
		"title":         "Test Video",
		"platform":      "youtube",
		"quality_label": "1080p",
		"resolution":    "1920x1080",
		"has_video":     true,
	}
}

func TestTasks_SubmitAndGet(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/v1/tasks", submitBody("https://youtube.com/watch?v=dQw4w9WgXcQ"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var snap task.Snapshot
	decodeJSON(t, w, &snap)
	if snap.ID == "" {
		t.Fatal("expected task_id in response")
	}
	if snap.Status != task.StatusPending && snap.Status != task.StatusDownloading {
		t.Errorf("unexpected initial status %q", snap.Status)
	}

	got := ts.do(t, http.MethodGet, "/api/v1/tasks/"+snap.ID, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", got.Code)
	}

	var fetched task.Snapshot
	decodeJSON(t, got, &fetched)
	if fetched.ID != snap.ID {
		t.Errorf("expected task %s, got %s", snap.ID, fetched.ID)
	}
}

func TestTasks_SubmitValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]any
		code string
	}{
		{
			name: "missing url",
			body: map[string]any{"format_id": "137"},
			code: apperrors.CodeInvalidRequest,
		},
		{
			name: "missing format_id",
			body: map[string]any{"url": "https://youtube.com/watch?v=abc"},
			code: apperrors.CodeInvalidRequest,
		},
		{
			name: "unsupported output format",
			body: map[string]any{
				"url":           "https://youtube.com/watch?v=abc",
				"format_id":     "137",
				"output_format": "avi",
			},
			code: apperrors.CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/v1/tasks", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			if body := decodeError(t, w); body.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, body.Code)
			}
		})
	}
}

func TestTasks_SubmitMalformedJSON(t *testing.T) {
	ts := newTestServer(t, nil)

	req := ts.do(t, http.MethodPost, "/api/v1/tasks", nil)
	if req.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty body, got %d", req.Code)
	}
	if body := decodeError(t, req); body.Code != apperrors.CodeInvalidRequest {
		t.Errorf("expected code %s, got %s", apperrors.CodeInvalidRequest, body.Code)
	}
}

func TestTasks_GetNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/v1/tasks/deadbeef", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
	if body := decodeError(t, w); body.Code != apperrors.CodeTaskNotFound {
		t.Errorf("expected code %s, got %s", apperrors.CodeTaskNotFound, body.Code)
	}
}

func TestTasks_ListWithQueueState(t *testing.T) {
	eng := &stubEngine{release: make(chan struct{})}
	ts := newTestServer(t, eng)
	defer close(eng.release)

	var first task.Snapshot
	w := ts.do(t, http.MethodPost, "/api/v1/tasks", submitBody("https://youtube.com/watch?v=one"))
	decodeJSON(t, w, &first)
	waitStatus(t, ts.manager, first.ID, task.StatusDownloading)

	ts.do(t, http.MethodPost, "/api/v1/tasks", submitBody("https://youtube.com/watch?v=two"))

	list := ts.do(t, http.MethodGet, "/api/v1/tasks", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", list.Code)
	}

	var resp ListTasksResponse
	decodeJSON(t, list, &resp)
	if len(resp.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(resp.Tasks))
	}
	if resp.Tasks[0].URL != "https://youtube.com/watch?v=one" {
		t.Errorf("expected submission order preserved, got %s first", resp.Tasks[0].URL)
	}
	if resp.Queue.Active != 1 {
		t.Errorf("expected 1 active download, got %d", resp.Queue.Active)
	}
	if resp.Queue.Pending != 1 {
		t.Errorf("expected 1 queued task, got %d", resp.Queue.Pending)
	}
}

func TestTasks_PauseAndResume(t *testing.T) {
	eng := &stubEngine{release: make(chan struct{})}
	ts := newTestServer(t, eng)
	defer close(eng.release)

	var snap task.Snapshot
	w := ts.do(t, http.MethodPost, "/api/v1/tasks", submitBody("https://youtube.com/watch?v=abc"))
	decodeJSON(t, w, &snap)
	waitStatus(t, ts.manager, snap.ID, task.StatusDownloading)

	paused := ts.do(t, http.MethodPost, "/api/v1/tasks/"+snap.ID+"/pause", nil)
	if paused.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", paused.Code, paused.Body.String())
	}
	var pausedSnap task.Snapshot
	decodeJSON(t, paused, &pausedSnap)
	if pausedSnap.Status != task.StatusPaused {
		t.Fatalf("expected status paused, got %s", pausedSnap.Status)
	}

	resumed := ts.do(t, http.MethodPost, "/api/v1/tasks/"+snap.ID+"/resume", nil)
	if resumed.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resumed.Code, resumed.Body.String())
	}
	waitStatus(t, ts.manager, snap.ID, task.StatusDownloading)
}

func TestTasks_PausePendingConflict(t *testing.T) {
	eng := &stubEngine{release: make(chan struct{})}
	ts := newTestServer(t, eng)
	defer close(eng.release)

	var first task.Snapshot
	w := ts.do(t, http.MethodPost, "/api/v1/tasks", submitBody("https://youtube.com/watch?v=one"))
	decodeJSON(t, w, &first)
	waitStatus(t, ts.manager, first.ID, task.StatusDownloading)

	// One worker is busy, so the second submission parks in the queue.
	var second task.Snapshot
	w = ts.do(t, http.MethodPost, "/api/v1/tasks", submitBody("https://youtube.com/watch?v=two"))
	decodeJSON(t, w, &second)

	paused := ts.do(t, http.MethodPost, "/api/v1/tasks/"+second.ID+"/pause", nil)
	if paused.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", paused.Code)
	}
	if body := decodeError(t, paused); body.Code != apperrors.CodeIllegalTransition {
		t.Errorf("expected code %s, got %s", apperrors.CodeIllegalTransition, body.Code)
	}
}

func TestTasks_Cancel(t *testing.T) {
	eng := &stubEngine{release: make(chan struct{})}
	ts := newTestServer(t, eng)
	defer close(eng.release)

	var snap task.Snapshot
	w := ts.do(t, http.MethodPost, "/api/v1/tasks", submitBody("https://youtube.com/watch?v=abc"))
	decodeJSON(t, w, &snap)
	waitStatus(t, ts.manager, snap.ID, task.StatusDownloading)

	cancelled := ts.do(t, http.MethodPost, "/api/v1/tasks/"+snap.ID+"/cancel", nil)
	if cancelled.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", cancelled.Code, cancelled.Body.String())
	}
	var cancelledSnap task.Snapshot
	decodeJSON(t, cancelled, &cancelledSnap)
	if cancelledSnap.Status != task.StatusCancelled {
		t.Errorf("expected status cancelled, got %s", cancelledSnap.Status)
	}

	// Cancelling again conflicts: the task is already terminal.
	again := ts.do(t, http.MethodPost, "/api/v1/tasks/"+snap.ID+"/cancel", nil)
	if again.Code != http.StatusConflict {
		t.Errorf("expected status 409 on second cancel, got %d", again.Code)
	}
}

func TestTasks_RemoveLifecycle(t *testing.T) {
	eng := &stubEngine{release: make(chan struct{})}
	ts := newTestServer(t, eng)
	defer close(eng.release)

	var snap task.Snapshot
	w := ts.do(t, http.MethodPost, "/api/v1/tasks", submitBody("https://youtube.com/watch?v=abc"))
	decodeJSON(t, w, &snap)
	waitStatus(t, ts.manager, snap.ID, task.StatusDownloading)

	// Active tasks cannot be removed directly.
	removed := ts.do(t, http.MethodDelete, "/api/v1/tasks/"+snap.ID, nil)
	if removed.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for active task, got %d", removed.Code)
	}

	ts.do(t, http.MethodPost, "/api/v1/tasks/"+snap.ID+"/cancel", nil)

	removed = ts.do(t, http.MethodDelete, "/api/v1/tasks/"+snap.ID, nil)
	if removed.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", removed.Code, removed.Body.String())
	}

	gone := ts.do(t, http.MethodGet, "/api/v1/tasks/"+snap.ID, nil)
	if gone.Code != http.StatusNotFound {
		t.Errorf("expected status 404 after removal, got %d", gone.Code)
	}
}

func TestTasks_CompleteAndClear(t *testing.T) {
	ts := newTestServer(t, nil)

	var snap task.Snapshot
	w := ts.do(t, http.MethodPost, "/api/v1/tasks", submitBody("https://youtube.com/watch?v=abc"))
	decodeJSON(t, w, &snap)
	done := waitStatus(t, ts.manager, snap.ID, task.StatusCompleted)

	if done.OutputPath == "" {
		t.Error("expected output_path on completed task")
	}
	if done.Progress.Percent != 100 {
		t.Errorf("expected percent 100, got %f", done.Progress.Percent)
	}

	cleared := ts.do(t, http.MethodPost, "/api/v1/tasks/clear-completed", nil)
	if cleared.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", cleared.Code)
	}
	var resp ClearCompletedResponse
	decodeJSON(t, cleared, &resp)
	if resp.Count != 1 {
		t.Errorf("expected count 1, got %d", resp.Count)
	}

	var list ListTasksResponse
	decodeJSON(t, ts.do(t, http.MethodGet, "/api/v1/tasks", nil), &list)
	if len(list.Tasks) != 0 {
		t.Errorf("expected empty task list after clear, got %d", len(list.Tasks))
	}
}

func TestTasks_OpenFolderWithoutOutput(t *testing.T) {
	eng := &stubEngine{release: make(chan struct{})}
	ts := newTestServer(t, eng)
	defer close(eng.release)

	var first task.Snapshot
	w := ts.do(t, http.MethodPost, "/api/v1/tasks", submitBody("https://youtube.com/watch?v=one"))
	decodeJSON(t, w, &first)
	waitStatus(t, ts.manager, first.ID, task.StatusDownloading)

	// The queued task has no planned destination yet.
	var second task.Snapshot
	w = ts.do(t, http.MethodPost, "/api/v1/tasks", submitBody("https://youtube.com/watch?v=two"))
	decodeJSON(t, w, &second)

	opened := ts.do(t, http.MethodPost, "/api/v1/tasks/"+second.ID+"/open-folder", nil)
	if opened.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", opened.Code)
	}
}
