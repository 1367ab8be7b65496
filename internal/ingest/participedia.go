package ingest

import "strings"

// caseSectionHeaders are the canonical Participedia case-study section
// titles. Case bodies carry them as plain text lines, not markdown headings.
var caseSectionHeaders = []string{
	"Problems and Purpose",
	"Background History and Context",
	"Organizing, Supporting, and Funding Entities",
	"Participant Recruitment and Selection",
	"Methods and Tools Used",
	"What Went On: Process, Interaction, and Participation",
	"Influence, Outcomes, and Effects",
	"Analysis and Lessons Learned",
}

// IsCaseStudySource reports whether a source label denotes the Participedia
// case-study library, which gets its own doc type and section handling.
func IsCaseStudySource(source string) bool {
	return strings.Contains(strings.ToLower(source), "participedia")
}

// NormalizeCaseSections rewrites known case-study section headers as level-2
// markdown headings so the structure chunker can sectionize the body. Lines
// that are not recognized headers pass through unchanged.
func NormalizeCaseSections(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, h := range caseSectionHeaders {
			if strings.EqualFold(trimmed, h) {
				lines[i] = "## " + h
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}
