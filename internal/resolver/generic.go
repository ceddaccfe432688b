package resolver

import (
	"net/url"
	"strings"
)

// GenericMatcher accepts any plausible HTTP(S) URL and leaves platform
// identification to the probe's extractor. It must be registered last.
type GenericMatcher struct{}

// NewGenericMatcher creates a new catch-all matcher
func NewGenericMatcher() *GenericMatcher {
	return &GenericMatcher{}
}

// Platform returns the platform for this matcher
func (m *GenericMatcher) Platform() Platform {
	return PlatformGeneric
}

// CanHandle returns true for any URL with an http(s) scheme and a dotted host
func (m *GenericMatcher) CanHandle(rawURL string) bool {
	_, ok := normalizeGenericURL(rawURL)
	return ok
}

// Match validates the URL shape without extracting a media ID
func (m *GenericMatcher) Match(rawURL string) MatchResult {
	normalized, ok := normalizeGenericURL(rawURL)
	if !ok {
		return MatchResult{
			Valid:    false,
			Platform: PlatformGeneric,
			URL:      strings.TrimSpace(rawURL),
			Error:    "not a valid http(s) URL",
		}
	}

	return MatchResult{
		Valid:    true,
		Platform: PlatformGeneric,
		URL:      normalized,
	}
}

// normalizeGenericURL parses rawURL, defaulting the scheme to https for
// scheme-less input like "example.com/video".
func normalizeGenericURL(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" && parsed.Host == "" {
		parsed, err = url.Parse("https://" + rawURL)
		if err != nil {
			return "", false
		}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	if !strings.Contains(parsed.Host, ".") {
		return "", false
	}

	return parsed.String(), true
}
