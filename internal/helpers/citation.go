// Package helpers holds small standalone utilities shared by the server
// and agent layers.
package helpers

import (
	"regexp"
	"strings"
)

// InlineCitation is one [Source: "..."] span located in generated prose.
type InlineCitation struct {
	// Raw is the full matched span including brackets.
	Raw string
	// Name is the cited document name with quotes stripped.
	Name string
	// Tag is the optional qualifier after the comma, e.g. a section hint.
	Tag string
	// Offset is the byte offset of the span in the scanned text.
	Offset int
}

// KnownSource is a resolution candidate: a document title with its URL.
type KnownSource struct {
	Title string
	URL   string
}

var inlineCitationRe = regexp.MustCompile(`\[Source:\s*"([^"]+)"(?:\s*,\s*([^\]]+))?\]`)

// ExtractCitations locates every inline citation span in the text, in order.
func ExtractCitations(text string) []InlineCitation {
	matches := inlineCitationRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]InlineCitation, 0, len(matches))
	for _, m := range matches {
		c := InlineCitation{
			Raw:    text[m[0]:m[1]],
			Name:   text[m[2]:m[3]],
			Offset: m[0],
		}
		if m[4] >= 0 {
			c.Tag = strings.TrimSpace(text[m[4]:m[5]])
		}
		out = append(out, c)
	}
	return out
}

// StripCitations removes every inline citation span, collapsing the double
// spaces that removal leaves behind.
func StripCitations(text string) string {
	stripped := inlineCitationRe.ReplaceAllString(text, "")
	stripped = strings.ReplaceAll(stripped, "  ", " ")
	return strings.TrimSpace(stripped)
}

// ResolveCitation matches a cited document name against known sources.
// Matching is case-insensitive substring containment in either direction;
// among multiple candidates the longest title wins, so "Engagement Guide
// Vol 2" beats "Engagement Guide". Returns false when nothing matches:
// resolution is best-effort and unresolved citations simply render without
// a URL.
func ResolveCitation(name string, known []KnownSource) (KnownSource, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return KnownSource{}, false
	}

	var best KnownSource
	found := false
	for _, src := range known {
		title := strings.ToLower(strings.TrimSpace(src.Title))
		if title == "" {
			continue
		}
		if !strings.Contains(title, needle) && !strings.Contains(needle, title) {
			continue
		}
		if !found || len(src.Title) > len(best.Title) {
			best = src
			found = true
		}
	}
	return best, found
}

// AnnotateCitations rewrites inline citations as markdown links for every
// name that resolves against the known sources. Unresolved spans are left
// untouched.
func AnnotateCitations(text string, known []KnownSource) string {
	return inlineCitationRe.ReplaceAllStringFunc(text, func(raw string) string {
		sub := inlineCitationRe.FindStringSubmatch(raw)
		if sub == nil {
			return raw
		}
		src, ok := ResolveCitation(sub[1], known)
		if !ok || src.URL == "" {
			return raw
		}
		return "[Source: [" + sub[1] + "](" + src.URL + ")]"
	})
}
