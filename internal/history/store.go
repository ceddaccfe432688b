package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/grabfrom/core/internal/task"
)

const (
	// DefaultMaxRows is the row cap applied after every append.
	DefaultMaxRows = 1000
	// DefaultMaxAge is the age cap applied after every append.
	DefaultMaxAge = 90 * 24 * time.Hour

	// DefaultQueryLimit is the page size when a query names none.
	DefaultQueryLimit = 200
	// MaxQueryLimit caps the page size a query may request.
	MaxQueryLimit = 1000
)

// Record is one finished download in the history table.
type Record struct {
	ID             int64      `json:"id"`
	TaskID         string     `json:"task_id"`
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Platform       string     `json:"platform"`
	FormatID       string     `json:"format_id,omitempty"`
	QualityLabel   string     `json:"quality_label,omitempty"`
	Resolution     string     `json:"resolution,omitempty"`
	OutputFormat   string     `json:"output_format,omitempty"`
	FilesizeBytes  int64      `json:"filesize_bytes,omitempty"`
	FilesizeStr    string     `json:"filesize_str,omitempty"`
	SavePath       string     `json:"save_path,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	DurationSec    int        `json:"duration_sec,omitempty"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	AudioExtracted bool       `json:"audio_extracted"`
	IncludeAudio   bool       `json:"include_audio"`
	HasAudio       bool       `json:"has_audio"`
	HasVideo       bool       `json:"has_video"`
}

// NewRecord builds a history record from a task that reached a terminal
// status. The file size falls back to a stat of the output path when the
// progress counter never learned the total.
func NewRecord(t *task.Task) Record {
	rec := Record{
		TaskID:         t.ID,
		URL:            t.URL,
		Title:          t.Title,
		Platform:       normalizePlatform(t.Platform),
		FormatID:       t.FormatID,
		QualityLabel:   t.QualityLabel,
		Resolution:     t.Resolution,
		OutputFormat:   t.OutputFormat,
		FilesizeBytes:  t.Progress.BytesTotal,
		SavePath:       t.OutputPath,
		Status:         string(t.Status),
		ErrorMessage:   t.ErrorMessage,
		AudioExtracted: t.IsAudioOnly(),
		IncludeAudio:   t.IncludeAudio,
		HasAudio:       t.HasAudio,
		HasVideo:       t.HasVideo,
	}

	created := t.CreatedAt
	rec.StartedAt = &created
	if t.CompletedAt != nil {
		finished := *t.CompletedAt
		rec.FinishedAt = &finished
	}

	if rec.FilesizeBytes <= 0 && t.OutputPath != "" {
		if info, err := os.Stat(t.OutputPath); err == nil {
			rec.FilesizeBytes = info.Size()
		}
	}

	return rec
}

// Query selects and orders history records. Zero values mean "no filter";
// Status and Platform also accept "all".
type Query struct {
	Status   string `json:"status"`
	Platform string `json:"platform"`
	Keyword  string `json:"keyword"`
	Sort     string `json:"sort"` // "newest" (default) or "oldest"
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

// Store is a SQLite-backed download history.
type Store struct {
	db      *sql.DB
	maxRows int
	maxAge  time.Duration
}

// Options tunes the retention policy. Zero values take the defaults.
type Options struct {
	MaxRows int
	MaxAge  time.Duration
}

// Open opens (and if needed creates) the history database at path.
func Open(path string, opts Options) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite allows one writer at a time; serialize through a single
	// connection instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := &Store{
		db:      db,
		maxRows: opts.MaxRows,
		maxAge:  opts.MaxAge,
	}
	if s.maxRows <= 0 {
		s.maxRows = DefaultMaxRows
	}
	if s.maxAge <= 0 {
		s.maxAge = DefaultMaxAge
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS download_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT UNIQUE NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		title_folded TEXT NOT NULL DEFAULT '',
		platform TEXT NOT NULL DEFAULT '',
		format_id TEXT NOT NULL DEFAULT '',
		quality_label TEXT NOT NULL DEFAULT '',
		resolution TEXT NOT NULL DEFAULT '',
		output_format TEXT NOT NULL DEFAULT '',
		filesize_bytes INTEGER NOT NULL DEFAULT 0,
		save_path TEXT NOT NULL DEFAULT '',
		started_at INTEGER,
		finished_at INTEGER,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		audio_extracted INTEGER NOT NULL DEFAULT 0,
		include_audio INTEGER NOT NULL DEFAULT 0,
		has_audio INTEGER NOT NULL DEFAULT 0,
		has_video INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_history_status ON download_history(status);
	CREATE INDEX IF NOT EXISTS idx_history_platform ON download_history(platform);
	CREATE INDEX IF NOT EXISTS idx_history_finished ON download_history(finished_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run history migrations: %w", err)
	}
	return nil
}

// Append inserts a record, or updates the existing row when the task was
// already recorded. Records without a task ID or URL are ignored. The
// retention policy runs after every successful write.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if rec.TaskID == "" || rec.URL == "" {
		return nil
	}

	query := `
		INSERT INTO download_history (
			task_id, url, title, title_folded, platform, format_id,
			quality_label, resolution, output_format, filesize_bytes,
			save_path, started_at, finished_at, status, error_message,
			audio_extracted, include_audio, has_audio, has_video
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			title_folded = excluded.title_folded,
			platform = excluded.platform,
			format_id = excluded.format_id,
			quality_label = excluded.quality_label,
			resolution = excluded.resolution,
			output_format = excluded.output_format,
			filesize_bytes = excluded.filesize_bytes,
			save_path = excluded.save_path,
			started_at = COALESCE(download_history.started_at, excluded.started_at),
			finished_at = excluded.finished_at,
			status = excluded.status,
			error_message = excluded.error_message,
			audio_extracted = excluded.audio_extracted,
			include_audio = excluded.include_audio,
			has_audio = excluded.has_audio,
			has_video = excluded.has_video
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.TaskID,
		rec.URL,
		rec.Title,
		foldTitle(rec.Title),
		normalizePlatform(rec.Platform),
		rec.FormatID,
		rec.QualityLabel,
		rec.Resolution,
		rec.OutputFormat,
		rec.FilesizeBytes,
		rec.SavePath,
		timeToMillis(rec.StartedAt),
		timeToMillis(rec.FinishedAt),
		rec.Status,
		rec.ErrorMessage,
		boolToInt(rec.AudioExtracted),
		boolToInt(rec.IncludeAudio),
		boolToInt(rec.HasAudio),
		boolToInt(rec.HasVideo),
	)
	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}

	return s.applyRetention(ctx)
}

// applyRetention prunes rows past the age cap, then rows past the row cap,
// oldest first by finish time.
func (s *Store) applyRetention(ctx context.Context) error {
	cutoff := time.Now().Add(-s.maxAge).UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM download_history WHERE COALESCE(finished_at, started_at) < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune history by age: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM download_history WHERE id NOT IN (
			SELECT id FROM download_history
			ORDER BY COALESCE(finished_at, started_at) DESC, id DESC
			LIMIT ?
		)`, s.maxRows)
	if err != nil {
		return fmt.Errorf("failed to prune history by row count: %w", err)
	}
	return nil
}

const recordColumns = `
	id, task_id, url, title, platform, format_id, quality_label, resolution,
	output_format, filesize_bytes, save_path, started_at, finished_at,
	status, error_message, audio_extracted, include_audio, has_audio, has_video
`

// Query returns matching records plus the total match count before paging.
// Filters combine conjunctively; the keyword matches the folded title or
// the URL.
func (s *Store) Query(ctx context.Context, q Query) ([]Record, int, error) {
	var clauses []string
	var params []any

	if q.Status != "" && q.Status != "all" {
		clauses = append(clauses, "status = ?")
		params = append(params, q.Status)
	}
	if q.Platform != "" && q.Platform != "all" {
		clauses = append(clauses, "platform = ?")
		params = append(params, normalizePlatform(q.Platform))
	}
	if keyword := strings.TrimSpace(q.Keyword); keyword != "" {
		clauses = append(clauses, "(title_folded LIKE ? OR url LIKE ?)")
		pattern := "%" + foldTitle(keyword) + "%"
		params = append(params, pattern, "%"+keyword+"%")
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = "WHERE " + strings.Join(clauses, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM download_history " + whereClause
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, params...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count history records: %w", err)
	}

	direction := "DESC"
	if q.Sort == "oldest" {
		direction = "ASC"
	}
	orderClause := fmt.Sprintf(
		"ORDER BY COALESCE(finished_at, started_at) %s, id %s", direction, direction)

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	params = append(params, limit, offset)

	selectQuery := fmt.Sprintf(
		"SELECT %s FROM download_history %s %s LIMIT ? OFFSET ?",
		recordColumns, whereClause, orderClause)

	rows, err := s.db.QueryContext(ctx, selectQuery, params...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Delete removes one record by its row id, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM download_history WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete history record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Clear removes all records and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM download_history`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the total number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM download_history`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return count, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var startedAt, finishedAt sql.NullInt64
	var audioExtracted, includeAudio, hasAudio, hasVideo int

	err := rows.Scan(
		&rec.ID, &rec.TaskID, &rec.URL, &rec.Title, &rec.Platform,
		&rec.FormatID, &rec.QualityLabel, &rec.Resolution, &rec.OutputFormat,
		&rec.FilesizeBytes, &rec.SavePath, &startedAt, &finishedAt,
		&rec.Status, &rec.ErrorMessage,
		&audioExtracted, &includeAudio, &hasAudio, &hasVideo,
	)
	if err != nil {
		return Record{}, err
	}

	rec.StartedAt = millisToTime(startedAt)
	rec.FinishedAt = millisToTime(finishedAt)
	rec.AudioExtracted = audioExtracted != 0
	rec.IncludeAudio = includeAudio != 0
	rec.HasAudio = hasAudio != 0
	rec.HasVideo = hasVideo != 0

	if rec.StartedAt != nil && rec.FinishedAt != nil && rec.FinishedAt.After(*rec.StartedAt) {
		rec.DurationSec = int(rec.FinishedAt.Sub(*rec.StartedAt).Seconds())
	}
	if rec.FilesizeBytes > 0 {
		rec.FilesizeStr = task.FormatSize(rec.FilesizeBytes)
	}

	return rec, nil
}

func timeToMillis(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func millisToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
