// Package chunker turns raw document text into ordered, retrievable chunks
// with structural metadata. It is pure: no I/O, no external state.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode selects the chunking strategy.
type Mode int

const (
	// ModeStructure parses markdown headings into sections and chunks each
	// section, sub-splitting oversized ones with overlap.
	ModeStructure Mode = iota
	// ModeSimple ignores document structure and applies a character window
	// over the full text.
	ModeSimple
)

// PathSeparator joins ancestor heading titles into a section path.
const PathSeparator = " > "

// prefixSeparator joins the document title and section path into the
// contextual prefix prepended before embedding.
const prefixSeparator = " | "

// Params carries the size constants for one chunking run. The markdown and
// sliding-window ingestion paths use different values, so they are passed in
// rather than fixed.
type Params struct {
	MaxChars int // section size threshold before sub-splitting
	Overlap  int // overlap seeded into the next sub-chunk
	MinChars int // chunks shorter than this are dropped (0 disables)
}

// DefaultStructureParams matches the markdown ingestion path.
var DefaultStructureParams = Params{MaxChars: 2000, Overlap: 300, MinChars: 50}

// DefaultSimpleParams matches the sliding-window ingestion path.
var DefaultSimpleParams = Params{MaxChars: 1000, Overlap: 200, MinChars: 50}

// Chunk is a retrievable unit of one document.
type Chunk struct {
	ID            string // "<sourceID>::chunk-<index>"
	DocumentID    string
	DocName       string
	Chapter       string // section title, possibly "(part N)" qualified
	SectionPath   string // ancestor headings joined by PathSeparator
	ContextPrefix string // doc title + section path, joined by " | "
	Content       string
	Index         int
	TotalChunks   int
}

// Section is a contiguous span of a document bounded by a heading.
type Section struct {
	Level   int // 1-4; 1 for the implicit preamble section
	Title   string
	Content string
	Path    []string // heading titles from the root down to this section
}

var headingRe = regexp.MustCompile(`^(#{1,4})\s+(.+)$`)

var paragraphRe = regexp.MustCompile(`\n{2,}`)

// ParseSections scans text line-by-line for markdown headings (levels 1-4)
// and returns the resulting sections with hierarchical paths. Content before
// the first heading becomes an untitled level-1 section. A document with no
// headings yields exactly one section with empty title and path.
func ParseSections(text string) []Section {
	lines := strings.Split(text, "\n")

	type frame struct {
		level int
		title string
	}
	var stack []frame
	var sections []Section
	var body []string

	current := Section{Level: 1}
	flush := func() {
		current.Content = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Content != "" || current.Title != "" {
			sections = append(sections, current)
		}
		body = body[:0]
	}

	for _, line := range lines {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			body = append(body, line)
			continue
		}
		flush()

		level := len(m[1])
		title := strings.TrimSpace(m[2])

		// Deeper-or-equal frames pop before the new heading pushes.
		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, frame{level: level, title: title})

		path := make([]string, 0, len(stack))
		for _, f := range stack {
			if f.title != "" {
				path = append(path, f.title)
			}
		}
		current = Section{Level: level, Title: title, Path: path}
	}
	flush()

	if sections == nil {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []Section{{Level: 1, Content: trimmed}}
	}
	return sections
}

// ChunkDocument converts one document's raw text into an ordered chunk list.
// Empty text yields nil; the caller should skip indexing in that case.
func ChunkDocument(text, sourceID, title string, mode Mode, p Params) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if p.MaxChars <= 0 {
		if mode == ModeStructure {
			p = DefaultStructureParams
		} else {
			p = DefaultSimpleParams
		}
	}

	var chunks []Chunk
	switch mode {
	case ModeSimple:
		for _, piece := range charWindow(text, p.MaxChars, p.Overlap) {
			chunks = append(chunks, Chunk{
				Content:       piece,
				ContextPrefix: title,
			})
		}
	default:
		chunks = structureChunks(text, title, p)
	}

	kept := chunks[:0]
	for _, c := range chunks {
		if p.MinChars > 0 && len(c.Content) < p.MinChars {
			continue
		}
		kept = append(kept, c)
	}
	chunks = kept

	for i := range chunks {
		chunks[i].ID = fmt.Sprintf("%s::chunk-%d", sourceID, i)
		chunks[i].DocumentID = sourceID
		chunks[i].DocName = title
		chunks[i].Index = i
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

func structureChunks(text, title string, p Params) []Chunk {
	var chunks []Chunk
	for _, sec := range ParseSections(text) {
		full := sec.Content
		if sec.Title != "" {
			full = sec.Title + "\n\n" + sec.Content
		}
		if strings.TrimSpace(full) == "" {
			continue
		}

		pathStr := strings.Join(sec.Path, PathSeparator)
		prefix := contextPrefix(title, pathStr)

		pieces := splitLongSection(full, p.MaxChars, p.Overlap)
		for i, piece := range pieces {
			chapter := sec.Title
			if len(pieces) > 1 {
				if sec.Title != "" {
					chapter = fmt.Sprintf("%s (part %d)", sec.Title, i+1)
				} else {
					chapter = fmt.Sprintf("Part %d", i+1)
				}
			}
			chunks = append(chunks, Chunk{
				Chapter:       chapter,
				SectionPath:   pathStr,
				ContextPrefix: prefix,
				Content:       piece,
			})
		}
	}
	return chunks
}

func contextPrefix(title, path string) string {
	switch {
	case title != "" && path != "":
		return title + prefixSeparator + path
	case title != "":
		return title
	default:
		return path
	}
}

// splitLongSection sub-splits section content that exceeds maxChars, first on
// paragraph boundaries with an overlap seed, then by character window for
// anything still oversized (a single giant paragraph has no blank lines to
// split on).
func splitLongSection(text string, maxChars, overlap int) []string {
	if len(text) <= maxChars {
		return []string{strings.TrimSpace(text)}
	}

	paragraphs := paragraphRe.Split(text, -1)
	var pieces []string
	var buf string
	for _, para := range paragraphs {
		candidate := para
		if buf != "" {
			candidate = buf + "\n\n" + para
		}
		if len(candidate) > maxChars && buf != "" {
			flushed := strings.TrimSpace(buf)
			pieces = append(pieces, flushed)
			if tail := overlapTail(flushed, overlap); tail != "" {
				buf = tail + "\n\n" + para
			} else {
				buf = para
			}
		} else {
			buf = candidate
		}
	}
	if strings.TrimSpace(buf) != "" {
		pieces = append(pieces, strings.TrimSpace(buf))
	}

	if len(pieces) == 0 {
		return charWindow(text, maxChars, overlap)
	}

	var flat []string
	for _, piece := range pieces {
		if len(piece) > maxChars {
			flat = append(flat, charWindow(piece, maxChars, overlap)...)
		} else {
			flat = append(flat, piece)
		}
	}
	return flat
}

// overlapTail returns the trailing overlap characters of a flushed chunk,
// preferring to start at a sentence boundary found in the first half of the
// window, then a word boundary, else the raw tail.
func overlapTail(text string, overlap int) string {
	if overlap <= 0 || len(text) == 0 {
		return ""
	}
	if len(text) <= overlap {
		return text
	}
	tail := text[len(text)-overlap:]
	if idx := strings.Index(tail, ". "); idx >= 0 && idx < overlap/2 {
		return strings.TrimSpace(tail[idx+2:])
	}
	if idx := strings.Index(tail, " "); idx >= 0 {
		return strings.TrimSpace(tail[idx+1:])
	}
	return tail
}

// charWindow splits text into windows of at most size characters, preferring
// to end each window at the last sentence or newline break in its back half.
// The next window starts overlap characters before the previous end.
func charWindow(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 4
	}

	var out []string
	start := 0
	for start < len(text) {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		if end < len(text) {
			window := text[start:end]
			last := strings.LastIndex(window, ". ")
			if nl := strings.LastIndex(window, "\n"); nl > last {
				last = nl
			}
			if last > size/2 {
				end = start + last + 1
			}
		}
		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			out = append(out, piece)
		}
		if end >= len(text) {
			break
		}
		next := end - overlap
		if next < 0 {
			next = 0
		}
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}
