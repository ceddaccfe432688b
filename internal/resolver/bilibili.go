package resolver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// BilibiliMatcher matches Bilibili video URLs, including b23.tv short links
type BilibiliMatcher struct {
	// videoIDPattern matches BV ids and legacy av ids
	videoIDPattern *regexp.Regexp
	// shortTokenPattern matches b23.tv share tokens
	shortTokenPattern *regexp.Regexp
}

// NewBilibiliMatcher creates a new Bilibili URL matcher
func NewBilibiliMatcher() *BilibiliMatcher {
	return &BilibiliMatcher{
		videoIDPattern:    regexp.MustCompile(`^(BV[0-9A-Za-z]{10}|[aA][vV]\d+)$`),
		shortTokenPattern: regexp.MustCompile(`^[0-9A-Za-z]+$`),
	}
}

// Platform returns the platform for this matcher
func (m *BilibiliMatcher) Platform() Platform {
	return PlatformBilibili
}

// CanHandle returns true if the URL appears to be a Bilibili URL
func (m *BilibiliMatcher) CanHandle(rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	return host == "bilibili.com" || host == "b23.tv"
}

// Match validates a Bilibili URL and extracts the video ID
func (m *BilibiliMatcher) Match(rawURL string) MatchResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return MatchResult{
			Valid:    false,
			Platform: PlatformBilibili,
			URL:      rawURL,
			Error:    "invalid URL format",
		}
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
		rawURL = parsed.String()
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return MatchResult{
			Valid:    false,
			Platform: PlatformBilibili,
			URL:      rawURL,
			Error:    "invalid URL scheme",
		}
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	if host == "b23.tv" {
		// Share token; the probe follows the redirect to the full URL.
		token := strings.Trim(parsed.Path, "/")
		if token == "" || !m.shortTokenPattern.MatchString(token) {
			return MatchResult{
				Valid:    false,
				Platform: PlatformBilibili,
				URL:      rawURL,
				Error:    "could not extract share token from URL",
			}
		}
		return MatchResult{
			Valid:     true,
			Platform:  PlatformBilibili,
			MediaID:   token,
			MediaType: "video",
			URL:       rawURL,
		}
	}

	videoID := extractBilibiliVideoID(parsed.Path)
	if videoID == "" {
		return MatchResult{
			Valid:    false,
			Platform: PlatformBilibili,
			URL:      rawURL,
			Error:    "could not extract video ID from URL",
		}
	}

	if !m.videoIDPattern.MatchString(videoID) {
		return MatchResult{
			Valid:    false,
			Platform: PlatformBilibili,
			URL:      rawURL,
			MediaID:  videoID,
			Error:    "invalid video ID format",
		}
	}

	return MatchResult{
		Valid:     true,
		Platform:  PlatformBilibili,
		MediaID:   videoID,
		MediaType: "video",
		URL:       rawURL,
		Canonical: fmt.Sprintf("https://www.bilibili.com/video/%s", videoID),
	}
}

// extractBilibiliVideoID extracts the video ID from /video/<id> paths
func extractBilibiliVideoID(path string) string {
	if !strings.HasPrefix(path, "/video/") {
		return ""
	}
	id := strings.TrimPrefix(path, "/video/")
	if idx := strings.Index(id, "/"); idx != -1 {
		id = id[:idx]
	}
	return id
}
