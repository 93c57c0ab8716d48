package util

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
)

var (
	tagPattern        = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// wpTimeLayouts are the timestamp shapes WordPress emits for date/modified.
// The REST API omits the zone on "date", so those are read as UTC.
var wpTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FlattenHTML turns rendered HTML into a single line of plain text
func FlattenHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Excerpt cuts s to at most limit runes, appending "..." when anything was dropped.
func Excerpt(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// ParseWPTime parses a WordPress timestamp. Blank input yields nil.
func ParseWPTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	for _, layout := range wpTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	return nil, fmt.Errorf("unrecognised timestamp %q", s)
}

// FormatDate renders an optional timestamp, falling back to placeholder.
func FormatDate(t *time.Time, layout, placeholder string) string {
	if t == nil {
		return placeholder
	}
	return t.Format(layout)
}
