package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/grabfrom/core/internal/cache"
	apperrors "github.com/grabfrom/core/internal/errors"
	"github.com/grabfrom/core/internal/metrics"
	"github.com/grabfrom/core/internal/resolver"
)

// resolveCacheTTL bounds how long a probe result may be replayed. The
// format URLs inside a probe result expire server-side, so keep it short.
const resolveCacheTTL = 10 * time.Minute

type ResolveHandlers struct {
	resolver *resolver.Resolver
	cache    *cache.Cache
}

// NewResolveHandlers creates resolve handlers. The cache may be nil to
// disable result reuse.
func NewResolveHandlers(res *resolver.Resolver, c *cache.Cache) *ResolveHandlers {
	return &ResolveHandlers{resolver: res, cache: c}
}

// ResolveRequest is the body for URL resolution and validation.
type ResolveRequest struct {
	URL string `json:"url"`
}

// Resolve handles POST /api/v1/resolve
func (h *ResolveHandlers) Resolve(w http.ResponseWriter, r *http.Request) error {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.InvalidRequest("invalid request body")
	}
	url := strings.TrimSpace(req.URL)

	if h.cache != nil && url != "" {
		if cached, ok := h.cache.Get(url); ok {
			var media resolver.Media
			if err := json.Unmarshal([]byte(cached), &media); err == nil {
				metrics.Default().IncCounter("resolve_cache_hits")
				return writeJSON(w, r, http.StatusOK, &media)
			}
			h.cache.Delete(url)
		}
	}

	media, err := h.resolver.Resolve(r.Context(), url)
	if err != nil {
		return err
	}

	if h.cache != nil {
		if data, err := json.Marshal(media); err == nil {
			h.cache.Set(url, string(data), resolveCacheTTL)
			metrics.Default().SetGauge("resolve_cache_entries", float64(h.cache.Len()))
		}
	}
	return writeJSON(w, r, http.StatusOK, media)
}

// Validate handles POST /api/v1/validate. It consults only the matcher
// registry and never touches the network.
func (h *ResolveHandlers) Validate(w http.ResponseWriter, r *http.Request) error {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.InvalidRequest("invalid request body")
	}

	match := h.resolver.Registry().Match(strings.TrimSpace(req.URL))
	return writeJSON(w, r, http.StatusOK, match)
}
