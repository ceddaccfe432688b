// Package snapshot persists non-terminal tasks to a JSON file so queued and
// paused work survives a daemon restart.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grabfrom/core/internal/fetch"
	"github.com/grabfrom/core/internal/task"
)

// Entry is one persisted task plus the resume marker of its partial
// download, when it has one.
type Entry struct {
	Task   task.Task           `json:"task"`
	Resume *fetch.ResumeMarker `json:"resume,omitempty"`
}

type snapshotFile struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Tasks   []Entry   `json:"tasks"`
}

const fileVersion = 1

// Store reads and rewrites the pending-tasks file. Writes replace the whole
// file through a temp file and rename, so a crash mid-write never leaves a
// truncated snapshot behind.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store for the snapshot file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Save rewrites the snapshot with the given entries.
func (s *Store) Save(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := snapshotFile{
		Version: fileVersion,
		SavedAt: time.Now().UTC(),
		Tasks:   entries,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot and normalizes it for a fresh process start:
// tasks recorded as downloading are demoted to pending (the run died with
// the previous process), terminal tasks are dropped, and stale speed/ETA
// figures are cleared. A missing file is an empty snapshot.
func (s *Store) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	var payload snapshotFile
	if err := json.NewDecoder(f).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	entries := make([]Entry, 0, len(payload.Tasks))
	for _, entry := range payload.Tasks {
		tk := entry.Task
		if tk.ID == "" || tk.Status.Terminal() {
			continue
		}

		if tk.Status == task.StatusDownloading {
			tk.Status = task.StatusPending
			tk.Stage = ""
			// A run that died mid-download left partials behind; keep a
			// marker so the next run continues them.
			if entry.Resume == nil && tk.OutputPath != "" && tk.Progress.BytesDownloaded > 0 {
				entry.Resume = &fetch.ResumeMarker{
					Path:            tk.OutputPath,
					BytesDownloaded: tk.Progress.BytesDownloaded,
				}
			}
		}

		tk.Progress.Speed = 0
		tk.Progress.ETASec = task.ETAUnknown
		entry.Task = tk
		entries = append(entries, entry)
	}

	return entries, nil
}

// Remove deletes the snapshot file. Missing files are not an error.
func (s *Store) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}
