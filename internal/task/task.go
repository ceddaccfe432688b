// Package task defines the download task data model: the immutable request
// fields captured at submission, the status state machine, the stage
// sub-phases of an active run, and the progress snapshot pushed to the UI.
package task

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Active reports whether a worker currently owns the task.
func (s Status) Active() bool {
	return s == StatusDownloading
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusPaused,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// transitions is the full status graph. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:     {StatusDownloading, StatusCancelled},
	StatusDownloading: {StatusCompleted, StatusFailed, StatusPaused, StatusCancelled},
	StatusPaused:      {StatusPending, StatusCancelled},
}

// CanTransition reports whether from→to is a legal status transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Stage is the sub-phase of an active download.
type Stage string

const (
	StageDownloadingVideo Stage = "downloading_video"
	StageDownloadingAudio Stage = "downloading_audio"
	StageMerging          Stage = "merging"
	StageExtractingAudio  Stage = "extracting_audio"
	StageProcessing       Stage = "processing"
)

// Progress is the normalized progress snapshot for a task. It is written
// only by the task's active worker and read by everyone else via copies.
type Progress struct {
	BytesDownloaded int64   `json:"bytes_downloaded"`
	BytesTotal      int64   `json:"bytes_total"`
	Speed           float64 `json:"speed"`
	ETASec          int     `json:"eta"`
	Percent         float64 `json:"percent"`
}

// Request carries the immutable fields of a submission.
type Request struct {
	URL          string `json:"url"`
	FormatID     string `json:"format_id"`
	OutputFormat string `json:"output_format"`
	IncludeAudio bool   `json:"include_audio"`
	HasAudio     bool   `json:"has_audio"`
	HasVideo     bool   `json:"has_video"`
	Title        string `json:"title"`
	Thumbnail    string `json:"thumbnail"`
	Platform     string `json:"platform"`
	QualityLabel string `json:"quality_label"`
	Resolution   string `json:"resolution"`
}

// Task is one requested download job plus its mutable execution state.
// Mutable fields are guarded by the owning manager entry; callers outside
// the manager only ever see Snapshot copies.
type Task struct {
	ID           string `json:"task_id"`
	URL          string `json:"url"`
	FormatID     string `json:"format_id"`
	OutputFormat string `json:"output_format"`
	IncludeAudio bool   `json:"include_audio"`
	HasAudio     bool   `json:"has_audio"`
	HasVideo     bool   `json:"has_video"`
	Title        string `json:"title"`
	Thumbnail    string `json:"thumbnail"`
	Platform     string `json:"platform"`
	QualityLabel string `json:"quality_label"`
	Resolution   string `json:"resolution"`

	Status       Status     `json:"status"`
	Stage        Stage      `json:"stage,omitempty"`
	Progress     Progress   `json:"progress"`
	OutputPath   string     `json:"output_path,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewID returns a short task identifier: the first 8 hex characters of a
// UUID, matching what the UI displays.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// New creates a pending task from a request.
func New(req Request) *Task {
	return &Task{
		ID:           NewID(),
		URL:          req.URL,
		FormatID:     req.FormatID,
		OutputFormat: req.OutputFormat,
		IncludeAudio: req.IncludeAudio,
		HasAudio:     req.HasAudio,
		HasVideo:     req.HasVideo,
		Title:        req.Title,
		Thumbnail:    req.Thumbnail,
		Platform:     req.Platform,
		QualityLabel: req.QualityLabel,
		Resolution:   req.Resolution,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}

// Snapshot is a read-only value copy of a task, safe to hand to other
// goroutines, the notifier, and the API layer.
type Snapshot struct {
	Task
	SpeedLabel string `json:"speed_label,omitempty"`
	ETALabel   string `json:"eta_label,omitempty"`
	SizeLabel  string `json:"size_label,omitempty"`
}

// Snapshot returns a value copy with human-readable labels attached.
func (t *Task) Snapshot() Snapshot {
	snap := Snapshot{Task: *t}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		snap.CompletedAt = &completed
	}
	if t.Status == StatusDownloading {
		snap.SpeedLabel = FormatSpeed(t.Progress.Speed)
		snap.ETALabel = FormatETA(t.Progress.ETASec)
	}
	if t.Progress.BytesTotal > 0 {
		snap.SizeLabel = FormatSize(t.Progress.BytesTotal)
	}
	return snap
}

// IsAudioOnly reports whether the task produces an audio file and therefore
// runs the audio extraction stage.
func (t *Task) IsAudioOnly() bool {
	switch strings.ToLower(t.OutputFormat) {
	case "mp3", "m4a", "flac", "opus", "wav":
		return true
	}
	return false
}
