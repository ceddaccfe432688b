// Package health reports whether the daemon's dependencies are usable:
// the history database, the download directory, and the external media
// binaries the fetch engine shells out to.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Checker performs health checks on the daemon's dependencies
type Checker struct {
	db           *sql.DB
	downloadDir  string
	ffmpegPath   string
	engineCheck  func(ctx context.Context) error
	version      string
	checkTimeout time.Duration
}

// CheckerConfig holds configuration for the health checker
type CheckerConfig struct {
	// DB is the history database handle.
	DB *sql.DB
	// DownloadDir is probed for writability.
	DownloadDir string
	// FfmpegPath is the ffmpeg binary ("ffmpeg" resolves via PATH).
	FfmpegPath string
	// EngineCheck verifies the fetch engine binary, e.g. a yt-dlp
	// version call.
	EngineCheck func(ctx context.Context) error
	Version     string
	Timeout     time.Duration
}

// NewChecker creates a new health checker
func NewChecker(cfg *CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		db:           cfg.DB,
		downloadDir:  cfg.DownloadDir,
		ffmpegPath:   cfg.FfmpegPath,
		engineCheck:  cfg.EngineCheck,
		version:      cfg.Version,
		checkTimeout: timeout,
	}
}

// CheckHistory checks that the history database answers queries
func (c *Checker) CheckHistory(ctx context.Context) ComponentHealth {
	start := time.Now()

	if c.db == nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: "history database not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return ComponentHealth{
			Status:   StatusUnhealthy,
			Message:  "history database ping failed",
			Duration: time.Since(start).String(),
		}
	}

	var result int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return ComponentHealth{
			Status:   StatusDegraded,
			Message:  "history database query failed",
			Duration: time.Since(start).String(),
		}
	}

	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// CheckDownloadDir checks that the download directory exists and accepts
// writes, by creating and removing a probe file.
func (c *Checker) CheckDownloadDir(ctx context.Context) ComponentHealth {
	start := time.Now()

	if c.downloadDir == "" {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: "download directory not configured",
		}
	}

	info, err := os.Stat(c.downloadDir)
	if err != nil || !info.IsDir() {
		return ComponentHealth{
			Status:   StatusUnhealthy,
			Message:  "download directory missing",
			Duration: time.Since(start).String(),
		}
	}

	probe := filepath.Join(c.downloadDir, ".grabfrom-health")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return ComponentHealth{
			Status:   StatusUnhealthy,
			Message:  "download directory not writable",
			Duration: time.Since(start).String(),
		}
	}
	os.Remove(probe)

	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// CheckEngine checks that the fetch engine and ffmpeg binaries respond.
// A missing ffmpeg degrades rather than fails: plain single-stream
// downloads still work without it.
func (c *Checker) CheckEngine(ctx context.Context) ComponentHealth {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if c.engineCheck != nil {
		if err := c.engineCheck(ctx); err != nil {
			return ComponentHealth{
				Status:   StatusUnhealthy,
				Message:  "fetch engine unavailable",
				Duration: time.Since(start).String(),
			}
		}
	}

	ffmpeg := c.ffmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if err := exec.CommandContext(ctx, ffmpeg, "-version").Run(); err != nil {
		return ComponentHealth{
			Status:   StatusDegraded,
			Message:  "ffmpeg unavailable, merge and audio extraction disabled",
			Duration: time.Since(start).String(),
		}
	}

	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// Check performs a basic health check (liveness)
func (c *Checker) Check(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   c.version,
	}
}

// DeepCheck performs a comprehensive health check (readiness)
func (c *Checker) DeepCheck(ctx context.Context) *HealthResponse {
	response := &HealthResponse{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    c.version,
		Components: make(map[string]ComponentHealth),
	}

	// Run checks in parallel
	var wg sync.WaitGroup
	var mu sync.Mutex

	checks := map[string]func(context.Context) ComponentHealth{
		"history":      c.CheckHistory,
		"download_dir": c.CheckDownloadDir,
		"engine":       c.CheckEngine,
	}

	for name, check := range checks {
		wg.Add(1)
		go func(n string, ch func(context.Context) ComponentHealth) {
			defer wg.Done()
			result := ch(ctx)
			mu.Lock()
			response.Components[n] = result
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()

	// Determine overall status
	for _, comp := range response.Components {
		if comp.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
			break
		} else if comp.Status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	return response
}

// Handler provides HTTP handlers for health endpoints
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// LivenessHandler reports that the process is up, without touching any
// dependency.
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler runs the dependency checks and reports per-component
// results.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.DeepCheck(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		// Degraded still accepts traffic
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// HealthHandler handles basic health check requests (the /health endpoint)
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	// Check if deep check is requested via query param
	if r.URL.Query().Get("deep") == "true" {
		h.ReadinessHandler(w, r)
		return
	}
	h.LivenessHandler(w, r)
}
