package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/grabfrom/core/internal/logger"
)

// slowRequestThreshold is the duration past which a request is logged as
// slow. Control operations should return well under this; resolve probes
// legitimately exceed it when an extractor crawls.
const slowRequestThreshold = 500 * time.Millisecond

// timingResponseWriter injects the Server-Timing header just before the
// response headers are flushed, when the handler's work is (nearly) done.
type timingResponseWriter struct {
	http.ResponseWriter
	start       time.Time
	statusCode  int
	wroteHeader bool
}

func (w *timingResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.Header().Set("Server-Timing", formatServerTiming(time.Since(w.start)))
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Timing returns a middleware that adds Server-Timing headers and logs
// slow requests. The header makes request latency visible in the embedded
// UI's DevTools.
func Timing(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &timingResponseWriter{
				ResponseWriter: w,
				start:          time.Now(),
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			if duration := time.Since(wrapped.start); duration > slowRequestThreshold {
				log.Warn(r.Context(), "slow request", map[string]interface{}{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      wrapped.statusCode,
					"duration_ms": duration.Milliseconds(),
				})
			}
		})
	}
}

func formatServerTiming(d time.Duration) string {
	ms := float64(d.Nanoseconds()) / 1e6
	return fmt.Sprintf("total;dur=%.2f", ms)
}
