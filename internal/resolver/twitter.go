package resolver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// XMatcher matches X (formerly Twitter) status URLs
type XMatcher struct {
	// statusPattern matches /<handle>/status/<numeric id> paths
	statusPattern *regexp.Regexp
}

// NewXMatcher creates a new X URL matcher
func NewXMatcher() *XMatcher {
	return &XMatcher{
		statusPattern: regexp.MustCompile(`^/(\w+)/status/(\d+)`),
	}
}

// Platform returns the platform for this matcher
func (m *XMatcher) Platform() Platform {
	return PlatformX
}

// CanHandle returns true if the URL appears to be an X or Twitter URL
func (m *XMatcher) CanHandle(rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "mobile.")

	return host == "x.com" || host == "twitter.com"
}

// Match validates an X URL and extracts the status ID
func (m *XMatcher) Match(rawURL string) MatchResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return MatchResult{
			Valid:    false,
			Platform: PlatformX,
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
			Platform: PlatformX,
			URL:      rawURL,
			Error:    "invalid URL scheme",
		}
	}

	groups := m.statusPattern.FindStringSubmatch(parsed.Path)
	if groups == nil {
		return MatchResult{
			Valid:    false,
			Platform: PlatformX,
			URL:      rawURL,
			Error:    "not a status URL",
		}
	}

	handle, statusID := groups[1], groups[2]

	return MatchResult{
		Valid:     true,
		Platform:  PlatformX,
		MediaID:   statusID,
		MediaType: "post",
		URL:       rawURL,
		Canonical: fmt.Sprintf("https://x.com/%s/status/%s", handle, statusID),
	}
}
