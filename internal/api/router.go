// Package api exposes the daemon's HTTP surface: the resolve, task, and
// history endpoints under /api/v1, health and metrics, and the WebSocket
// event stream at /ws.
package api

import (
	"net/http"

	apperrors "github.com/grabfrom/core/internal/errors"
	"github.com/grabfrom/core/internal/health"
	"github.com/grabfrom/core/internal/logger"
	"github.com/grabfrom/core/internal/metrics"
	"github.com/grabfrom/core/internal/middleware"
	"github.com/grabfrom/core/internal/notify"
)

// AppName is reported by the app info endpoint.
const AppName = "GrabFrom"

// Config carries the request-independent values the router reports back
// to the UI.
type Config struct {
	Version        string
	DownloadDir    string
	AllowedOrigins []string
}

type Router struct {
	handler http.Handler
}

// NewRouter assembles the full HTTP handler: API routes behind the
// middleware chain, with the WebSocket endpoint mounted outside it. The
// logging and gzip wrappers hide http.Hijacker, which the upgrade
// handshake needs.
func NewRouter(cfg Config, tasks *TaskHandlers, resolve *ResolveHandlers, hist *HistoryHandlers, healthHandler *health.Handler, ws *notify.Handler) *Router {
	log := logger.Default().WithComponent("api")

	mux := http.NewServeMux()

	// Health and metrics
	mux.HandleFunc("GET /health", healthHandler.HealthHandler)
	mux.HandleFunc("GET /health/live", healthHandler.LivenessHandler)
	mux.HandleFunc("GET /health/ready", healthHandler.ReadinessHandler)
	mux.Handle("GET /metrics", metrics.Default().Handler())

	// URL resolution
	mux.HandleFunc("POST /api/v1/resolve", apperrors.HandleFunc(resolve.Resolve))
	mux.HandleFunc("POST /api/v1/validate", apperrors.HandleFunc(resolve.Validate))

	// Tasks
	mux.HandleFunc("POST /api/v1/tasks", apperrors.HandleFunc(tasks.Create))
	mux.HandleFunc("GET /api/v1/tasks", apperrors.HandleFunc(tasks.List))
	mux.HandleFunc("GET /api/v1/tasks/{task_id}", apperrors.HandleFunc(tasks.Get))
	mux.HandleFunc("DELETE /api/v1/tasks/{task_id}", apperrors.HandleFunc(tasks.Remove))
	mux.HandleFunc("POST /api/v1/tasks/{task_id}/pause", apperrors.HandleFunc(tasks.Pause))
	mux.HandleFunc("POST /api/v1/tasks/{task_id}/resume", apperrors.HandleFunc(tasks.Resume))
	mux.HandleFunc("POST /api/v1/tasks/{task_id}/cancel", apperrors.HandleFunc(tasks.Cancel))
	mux.HandleFunc("POST /api/v1/tasks/{task_id}/open-folder", apperrors.HandleFunc(tasks.OpenFolder))
	mux.HandleFunc("POST /api/v1/tasks/clear-completed", apperrors.HandleFunc(tasks.ClearCompleted))

	// History
	mux.HandleFunc("GET /api/v1/history", apperrors.HandleFunc(hist.List))
	mux.HandleFunc("DELETE /api/v1/history/{id}", apperrors.HandleFunc(hist.Delete))
	mux.HandleFunc("DELETE /api/v1/history", apperrors.HandleFunc(hist.Clear))

	// App info
	mux.HandleFunc("GET /api/v1/app", appInfoHandler(cfg))

	chained := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logging(log),
		middleware.Recoverer(log),
		metrics.MetricsMiddleware(metrics.Default()),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.Timing(log),
		middleware.Gzip,
	)

	outer := http.NewServeMux()
	outer.HandleFunc("GET /ws", ws.ServeWS)
	outer.Handle("/", chained)

	return &Router{handler: outer}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func appInfoHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]string{
			"name":          AppName,
			"version":       cfg.Version,
			"download_path": cfg.DownloadDir,
		})
	}
}

// writeJSON emits a success payload with the request id echoed back.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) error {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), status, data)
	return nil
}
