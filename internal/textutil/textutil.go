// Package textutil holds the bounded-length string helpers shared by the
// scraper, the refinement cascade and the scheduler. All lengths are counted
// in characters, not bytes.
package textutil

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Ellipsis marks text that was cut at a word boundary.
const Ellipsis = "..."

var (
	tagExpr   = regexp.MustCompile(`<[^>]+>`)
	spaceExpr = regexp.MustCompile(`\s+`)
)

// Truncate bounds text to max characters, preferring to end on a full
// sentence. Without a sentence terminator it cuts at the last word boundary
// and appends Ellipsis, and without a word boundary it hard-cuts.
func Truncate(text string, max int) string {
	if text == "" || max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= max {
		return text
	}

	cut := Clip(text, max)
	if i := strings.LastIndex(cut, "."); i > 0 {
		return cut[:i+1]
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		return cut[:i] + Ellipsis
	}
	return cut
}

// Clip returns at most the first max characters of s.
func Clip(s string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// ShortenURL bounds raw to max characters. Long URLs first lose their query
// and fragment and are then hard-truncated with a trailing Ellipsis.
func ShortenURL(raw string, max int) string {
	if utf8.RuneCountInString(raw) <= max {
		return raw
	}

	base := raw
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		// Cut the raw text rather than re-encoding it so the result stays
		// a prefix of the input.
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			base = raw[:i]
		}
	}
	if utf8.RuneCountInString(base) <= max {
		return base
	}
	if max <= len(Ellipsis) {
		return Clip(base, max)
	}
	return Clip(base, max-len(Ellipsis)) + Ellipsis
}

// StripHTML removes markup tags, decodes entities and trims the result.
func StripHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagExpr.ReplaceAllString(s, "")))
}

// CollapseSpace replaces whitespace runs with one space and trims the ends.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spaceExpr.ReplaceAllString(s, " "))
}

// Len counts characters in s.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}
