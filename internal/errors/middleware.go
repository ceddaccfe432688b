package errors

import (
	"net/http"
)

// Handler is an http.HandlerFunc that reports failures instead of writing
// them itself.
type Handler func(w http.ResponseWriter, r *http.Request) error

// HandleFunc converts a Handler to a standard http.HandlerFunc. A returned
// error is rendered as the taxonomy's JSON error body, tagged with the
// request id from the context.
func HandleFunc(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			requestID := GetRequestID(r.Context())
			WriteError(w, requestID, err)
		}
	}
}
