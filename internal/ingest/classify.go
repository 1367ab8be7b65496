package ingest

import "strings"

// Content-type rules are matched in order against the lowercased source
// label and document name; the first hit wins.
type contentTypeRule struct {
	match func(source, name string) bool
	ctype string
}

func anyContains(haystacks []string, needles ...string) bool {
	for _, h := range haystacks {
		for _, n := range needles {
			if strings.Contains(h, n) {
				return true
			}
		}
	}
	return false
}

var contentTypeRules = []contentTypeRule{
	{func(s, n string) bool { return anyContains([]string{s, n}, "transcript") }, "transcript"},
	{func(s, n string) bool { return anyContains([]string{s, n}, "lecture") }, "lecture"},
	{func(s, n string) bool { return anyContains([]string{s, n}, "journal", "academic") }, "journal_article"},
	{func(s, n string) bool { return anyContains([]string{s, n}, "blog") }, "blog_post"},
	{func(s, n string) bool { return anyContains([]string{s, n}, "report", "white paper", "whitepaper") }, "report"},
	{func(s, n string) bool { return anyContains([]string{s, n}, "guide", "handbook", "how-to") }, "guide"},
	{func(s, n string) bool {
		return strings.Contains(s, "popvox") || strings.Contains(s, "democracynext") || anyContains([]string{s, n}, "policy brief")
	}, "policy_brief"},
	{func(s, n string) bool { return strings.Contains(s, "govlab") }, "report"},
	{func(s, n string) bool { return anyContains([]string{s, n}, "reboot") }, "blog_post"},
	{func(s, n string) bool { return anyContains([]string{s, n}, "case study", "case studies") }, "case_study"},
	{func(s, n string) bool { return anyContains([]string{s, n}, "tool", "resource") }, "tool_or_resource"},
}

// ClassifyContentType assigns a content type from the source label and
// document name. Returns "other" when no rule matches.
func ClassifyContentType(source, name string) string {
	s := strings.ToLower(source)
	n := strings.ToLower(name)
	for _, r := range contentTypeRules {
		if r.match(s, n) {
			return r.ctype
		}
	}
	return "other"
}

type docTypeRule struct {
	substr string
	dtype  string
}

var docTypeRules = []docTypeRule{
	{"filtered reboot", "reboot_democracy"},
	{"govlab", "govlab_resource"},
	{"lecture", "lecture_series"},
	{"transcript", "transcript"},
	{"reboot", "reboot_democracy"},
	{"popvox", "policy_resource"},
	{"democracynext", "policy_resource"},
	{"journal", "academic_paper"},
}

// ClassifyDocType maps a source label to a coarse document type.
func ClassifyDocType(source string) string {
	low := strings.ToLower(source)
	for _, r := range docTypeRules {
		if strings.Contains(low, r.substr) {
			return r.dtype
		}
	}
	return "external_resource"
}
