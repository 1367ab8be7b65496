package ingest

import (
	"regexp"
	"strings"
)

var (
	citationMarkerRe = regexp.MustCompile(`\[\d+\]`)
	footnoteRefRe    = regexp.MustCompile(`(?i)\[\s*note\s*\d*\s*\]`)
	inlineSpaceRe    = regexp.MustCompile(`[ \t]+`)
	blankRunRe       = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// CleanText strips bracketed citation markers like [1] and [note 3] and
// normalizes whitespace. Chunk boundaries depend on paragraph breaks, so
// blank-line runs collapse to exactly one empty line.
func CleanText(text string) string {
	s := citationMarkerRe.ReplaceAllString(text, "")
	s = footnoteRefRe.ReplaceAllString(s, "")
	s = inlineSpaceRe.ReplaceAllString(s, " ")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
