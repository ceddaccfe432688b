package resolver

import "sync"

// Registry manages platform matchers
type Registry struct {
	mu       sync.RWMutex
	matchers []Matcher
}

// NewRegistry creates a new matcher registry
func NewRegistry() *Registry {
	return &Registry{
		matchers: make([]Matcher, 0),
	}
}

// Register adds a matcher to the registry. Order matters: matchers are
// consulted first to last, so catch-all matchers belong at the end.
func (r *Registry) Register(m Matcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchers = append(r.matchers, m)
}

// Match finds the appropriate matcher and matches the URL
func (r *Registry) Match(url string) MatchResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.matchers {
		if m.CanHandle(url) {
			return m.Match(url)
		}
	}

	return MatchResult{
		Valid:    false,
		Platform: PlatformGeneric,
		URL:      url,
		Error:    "unsupported URL format",
	}
}

// SupportedPlatforms returns all platforms registered in the registry
func (r *Registry) SupportedPlatforms() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platforms := make([]Platform, 0, len(r.matchers))
	for _, m := range r.matchers {
		platforms = append(platforms, m.Platform())
	}
	return platforms
}

// DefaultRegistry creates a registry with all built-in matchers
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewYouTubeMatcher())
	r.Register(NewXMatcher())
	r.Register(NewBilibiliMatcher())
	r.Register(NewGenericMatcher())
	return r
}
