package api

import (
	"net/http"
	"strconv"

	apperrors "github.com/grabfrom/core/internal/errors"
	"github.com/grabfrom/core/internal/history"
)

type HistoryHandlers struct {
	store *history.Store
}

func NewHistoryHandlers(s *history.Store) *HistoryHandlers {
	return &HistoryHandlers{store: s}
}

// HistoryResponse pages the matching records. Total counts every match
// before paging so the UI can size its pager.
type HistoryResponse struct {
	Records []history.Record `json:"records"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ClearHistoryResponse reports how many records were removed.
type ClearHistoryResponse struct {
	Count int64 `json:"count"`
}

// List handles GET /api/v1/history
func (h *HistoryHandlers) List(w http.ResponseWriter, r *http.Request) error {
	params := r.URL.Query()
	q := history.Query{
		Status:   params.Get("status"),
		Platform: params.Get("platform"),
		Keyword:  params.Get("keyword"),
		Sort:     params.Get("sort"),
		Limit:    history.DefaultQueryLimit,
	}

	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return apperrors.InvalidRequest("limit must be a positive integer")
		}
		if n > history.MaxQueryLimit {
			n = history.MaxQueryLimit
		}
		q.Limit = n
	}
	if v := params.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return apperrors.InvalidRequest("offset must be a non-negative integer")
		}
		q.Offset = n
	}

	records, total, err := h.store.Query(r.Context(), q)
	if err != nil {
		return apperrors.PersistenceError("failed to query history").WithCause(err)
	}
	if records == nil {
		records = []history.Record{}
	}

	return writeJSON(w, r, http.StatusOK, HistoryResponse{
		Records: records,
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
}

// Delete handles DELETE /api/v1/history/{id}
func (h *HistoryHandlers) Delete(w http.ResponseWriter, r *http.Request) error {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return apperrors.InvalidRequest("id must be an integer")
	}

	deleted, err := h.store.Delete(r.Context(), id)
	if err != nil {
		return apperrors.PersistenceError("failed to delete history record").WithCause(err)
	}
	if !deleted {
		return apperrors.NotFound("history record")
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// Clear handles DELETE /api/v1/history
func (h *HistoryHandlers) Clear(w http.ResponseWriter, r *http.Request) error {
	count, err := h.store.Clear(r.Context())
	if err != nil {
		return apperrors.PersistenceError("failed to clear history").WithCause(err)
	}
	return writeJSON(w, r, http.StatusOK, ClearHistoryResponse{Count: count})
}
