package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/grabfrom/core/internal/task"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"), opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(taskID, title, platform, status string, finished time.Time) Record {
	started := finished.Add(-90 * time.Second)
	return Record{
		TaskID:     taskID,
		URL:        "https://example.com/" + taskID,
		Title:      title,
		Platform:   platform,
		Status:     status,
		StartedAt:  &started,
		FinishedAt: &finished,
	}
}

func TestStore_AppendAndQuery(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	now := time.Now()

	if err := s.Append(ctx, testRecord("aaaa1111", "First Video", "youtube", "completed", now.Add(-time.Hour))); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(ctx, testRecord("bbbb2222", "Second Video", "x", "failed", now)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, total, err := s.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	// Newest first by default.
	if records[0].TaskID != "bbbb2222" {
		t.Errorf("records[0].TaskID = %q, want %q", records[0].TaskID, "bbbb2222")
	}
	if records[0].DurationSec != 90 {
		t.Errorf("DurationSec = %d, want 90", records[0].DurationSec)
	}
}

func TestStore_Append_IdempotentPerTask(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	now := time.Now()

	rec := testRecord("aaaa1111", "My Video", "youtube", "failed", now)
	if err := s.Append(ctx, rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// A second append for the same task updates in place.
	rec.Status = "completed"
	rec.ErrorMessage = ""
	if err := s.Append(ctx, rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, total, err := s.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
	if records[0].Status != "completed" {
		t.Errorf("Status = %q, want %q", records[0].Status, "completed")
	}
}

func TestStore_Append_SkipsEmptyTaskID(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	if err := s.Append(ctx, Record{URL: "https://example.com/x"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}
}

func TestStore_Query_Filters(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	now := time.Now()

	seed := []Record{
		testRecord("aaaa1111", "Morning Routine", "youtube", "completed", now.Add(-3*time.Hour)),
		testRecord("bbbb2222", "Rocket Launch", "Twitter", "completed", now.Add(-2*time.Hour)),
		testRecord("cccc3333", "Café Tour", "bilibili", "failed", now.Add(-time.Hour)),
	}
	for _, rec := range seed {
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		query     Query
		wantTasks []string
	}{
		{
			name:      "status filter",
			query:     Query{Status: "completed"},
			wantTasks: []string{"bbbb2222", "aaaa1111"},
		},
		{
			name:      "platform filter normalizes aliases",
			query:     Query{Platform: "twitter"},
			wantTasks: []string{"bbbb2222"},
		},
		{
			name:      "keyword is case-insensitive",
			query:     Query{Keyword: "ROCKET"},
			wantTasks: []string{"bbbb2222"},
		},
		{
			name:      "keyword folds accents",
			query:     Query{Keyword: "cafe"},
			wantTasks: []string{"cccc3333"},
		},
		{
			name:      "filters combine conjunctively",
			query:     Query{Status: "completed", Platform: "youtube"},
			wantTasks: []string{"aaaa1111"},
		},
		{
			name:      "conjunctive filters can match nothing",
			query:     Query{Status: "failed", Platform: "youtube"},
			wantTasks: nil,
		},
		{
			name:      "all is no filter",
			query:     Query{Status: "all", Platform: "all"},
			wantTasks: []string{"cccc3333", "bbbb2222", "aaaa1111"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, total, err := s.Query(ctx, tt.query)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if total != len(tt.wantTasks) {
				t.Errorf("total = %d, want %d", total, len(tt.wantTasks))
			}
			if len(records) != len(tt.wantTasks) {
				t.Fatalf("len(records) = %d, want %d", len(records), len(tt.wantTasks))
			}
			for i, want := range tt.wantTasks {
				if records[i].TaskID != want {
					t.Errorf("records[%d].TaskID = %q, want %q", i, records[i].TaskID, want)
				}
			}
		})
	}
}

func TestStore_Query_SortOldest(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	now := time.Now()

	for i, id := range []string{"aaaa1111", "bbbb2222", "cccc3333"} {
		rec := testRecord(id, "Video", "youtube", "completed", now.Add(time.Duration(i)*time.Minute))
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	records, _, err := s.Query(ctx, Query{Sort: "oldest"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	want := []string{"aaaa1111", "bbbb2222", "cccc3333"}
	for i, id := range want {
		if records[i].TaskID != id {
			t.Errorf("records[%d].TaskID = %q, want %q", i, records[i].TaskID, id)
		}
	}
}

func TestStore_Query_LimitOffset(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	now := time.Now()

	ids := []string{"aaaa0000", "bbbb1111", "cccc2222", "dddd3333", "eeee4444"}
	for i, id := range ids {
		rec := testRecord(id, "Video", "youtube", "completed", now.Add(time.Duration(i)*time.Minute))
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	records, total, err := s.Query(ctx, Query{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	// Newest first: page 2 holds the third and fourth newest.
	if records[0].TaskID != "cccc2222" || records[1].TaskID != "bbbb1111" {
		t.Errorf("page = [%s, %s], want [cccc2222, bbbb1111]", records[0].TaskID, records[1].TaskID)
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	if err := s.Append(ctx, testRecord("aaaa1111", "Video", "youtube", "completed", time.Now())); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, _, err := s.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	deleted, err := s.Delete(ctx, records[0].ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("Delete() = false for existing record")
	}

	deleted, err = s.Delete(ctx, records[0].ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted {
		t.Error("Delete() = true for missing record")
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	now := time.Now()

	for i, id := range []string{"aaaa1111", "bbbb2222", "cccc3333"} {
		if err := s.Append(ctx, testRecord(id, "Video", "youtube", "completed", now.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	cleared, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if cleared != 3 {
		t.Errorf("Clear() = %d, want 3", cleared)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}
}

func TestStore_RetentionMaxRows(t *testing.T) {
	s := newTestStore(t, Options{MaxRows: 3})
	ctx := context.Background()
	now := time.Now()

	ids := []string{"aaaa0000", "bbbb1111", "cccc2222", "dddd3333", "eeee4444"}
	for i, id := range ids {
		rec := testRecord(id, "Video", "youtube", "completed", now.Add(time.Duration(i)*time.Minute))
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	records, total, err := s.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3 after retention", total)
	}

	// The newest three survive.
	want := []string{"eeee4444", "dddd3333", "cccc2222"}
	for i, id := range want {
		if records[i].TaskID != id {
			t.Errorf("records[%d].TaskID = %q, want %q", i, records[i].TaskID, id)
		}
	}
}

func TestStore_RetentionMaxAge(t *testing.T) {
	s := newTestStore(t, Options{MaxAge: 24 * time.Hour})
	ctx := context.Background()
	now := time.Now()

	stale := testRecord("aaaa1111", "Old Video", "youtube", "completed", now.Add(-48*time.Hour))
	if err := s.Append(ctx, stale); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	fresh := testRecord("bbbb2222", "New Video", "youtube", "completed", now)
	if err := s.Append(ctx, fresh); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, total, err := s.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if total != 1 {
		t.Fatalf("total = %d, want 1 after age retention", total)
	}
	if records[0].TaskID != "bbbb2222" {
		t.Errorf("survivor = %q, want %q", records[0].TaskID, "bbbb2222")
	}
}

func TestNewRecord(t *testing.T) {
	completed := time.Now()
	tk := task.New(task.Request{
		URL:          "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		FormatID:     "137",
		OutputFormat: "mp3",
		IncludeAudio: true,
		HasAudio:     true,
		HasVideo:     false,
		Title:        "Never Gonna Give You Up",
		Platform:     "Youtube",
		QualityLabel: "Audio",
		Resolution:   "audio only",
	})
	tk.Status = task.StatusCompleted
	tk.CompletedAt = &completed
	tk.Progress.BytesTotal = 4_500_000
	tk.OutputPath = "/downloads/never-gonna.mp3"

	rec := NewRecord(tk)

	if rec.TaskID != tk.ID {
		t.Errorf("TaskID = %q, want %q", rec.TaskID, tk.ID)
	}
	if rec.Platform != "youtube" {
		t.Errorf("Platform = %q, want normalized %q", rec.Platform, "youtube")
	}
	if !rec.AudioExtracted {
		t.Error("AudioExtracted = false for mp3 output")
	}
	if rec.FilesizeBytes != 4_500_000 {
		t.Errorf("FilesizeBytes = %d, want 4500000", rec.FilesizeBytes)
	}
	if rec.Status != "completed" {
		t.Errorf("Status = %q, want %q", rec.Status, "completed")
	}
	if rec.StartedAt == nil || rec.FinishedAt == nil {
		t.Fatal("StartedAt/FinishedAt not set")
	}
}

func TestFoldTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Café Tour", "cafe tour"},
		{"HELLO World", "hello world"},
		{"  spaced   out  ", "spaced out"},
		{"", ""},
		{"naïve façade", "naive facade"},
	}

	for _, tt := range tests {
		if got := foldTitle(tt.in); got != tt.want {
			t.Errorf("foldTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizePlatform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"YouTube", "youtube"},
		{"youtube_music", "youtube"},
		{"Twitter", "x"},
		{"x", "x"},
		{"X.com", "x"},
		{"BiliBili", "bilibili"},
		{"bili", "bilibili"},
		{"Vimeo", "vimeo"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizePlatform(tt.in); got != tt.want {
			t.Errorf("normalizePlatform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
