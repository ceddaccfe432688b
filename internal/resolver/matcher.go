package resolver

import "strings"

// Platform identifies the site a URL belongs to
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformX        Platform = "x"
	PlatformBilibili Platform = "bilibili"
	PlatformGeneric  Platform = "generic"
)

// NormalizePlatform maps extractor names and user-facing aliases onto the
// canonical platform names used in tasks and history rows.
func NormalizePlatform(name string) Platform {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case n == "":
		return PlatformGeneric
	case strings.Contains(n, "youtube"):
		return PlatformYouTube
	case n == "twitter" || n == "x.com" || n == "x":
		return PlatformX
	case n == "bilibili" || n == "bili" || n == "b":
		return PlatformBilibili
	}
	return Platform(n)
}

// MatchResult contains the result of URL matching
type MatchResult struct {
	Valid     bool     `json:"valid"`
	Platform  Platform `json:"platform"`
	MediaID   string   `json:"media_id,omitempty"`
	MediaType string   `json:"media_type,omitempty"` // e.g., "video", "short", "post"
	URL       string   `json:"url"`
	Canonical string   `json:"canonical_url,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Matcher defines the interface for platform URL matchers
type Matcher interface {
	// Platform returns the platform this matcher handles
	Platform() Platform

	// CanHandle returns true if this matcher can handle the given URL
	CanHandle(url string) bool

	// Match validates the URL and extracts relevant information
	Match(url string) MatchResult
}
