package history

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTitle lowercases a title, strips diacritics, and collapses runs of
// whitespace so keyword filtering is case- and accent-insensitive. The
// folded form is stored alongside the display title and queried with the
// folded keyword.
func foldTitle(s string) string {
	if s == "" {
		return ""
	}

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)), // Mn: Mark, Nonspacing
		norm.NFC,
	)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	folded = strings.ToLower(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// normalizePlatform collapses platform aliases to their canonical names so
// filter values and stored rows agree.
func normalizePlatform(platform string) string {
	value := strings.ToLower(strings.TrimSpace(platform))
	if value == "" {
		return ""
	}
	switch {
	case strings.Contains(value, "youtube"):
		return "youtube"
	case strings.Contains(value, "twitter"), strings.Contains(value, "x.com"), value == "x":
		return "x"
	case strings.Contains(value, "bilibili"), value == "bili", value == "b":
		return "bilibili"
	}
	return value
}
