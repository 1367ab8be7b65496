// Package kb defines the knowledge-base chunk schema shared by the store,
// the search index and the ingestion pipeline.
package kb

// ChunkRecord is one retrievable chunk as persisted and indexed.
type ChunkRecord struct {
	ID          string    `json:"id"` // "<document_id>::chunk-<index>"
	DocumentID  string    `json:"document_id"`
	DocName     string    `json:"doc_name"`
	SourceLabel string    `json:"source_label"`
	SourceURL   string    `json:"source_url"`
	DocType     string    `json:"doc_type"`
	ContentType string    `json:"content_type"`
	SectionName string    `json:"section_name"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	DocDate     string    `json:"doc_date"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"-"`
}

// ContentTypes is the fixed classification enumeration.
var ContentTypes = []string{
	"case_study",
	"transcript",
	"blog_post",
	"journal_article",
	"report",
	"guide",
	"policy_brief",
	"lecture",
	"tool_or_resource",
	"other",
}

var contentTypeLabels = map[string]string{
	"case_study":       "Case Study",
	"transcript":       "Transcript",
	"blog_post":        "Blog Post",
	"journal_article":  "Journal Article",
	"report":           "Report",
	"guide":            "Guide",
	"policy_brief":     "Policy Brief",
	"lecture":          "Lecture",
	"tool_or_resource": "Tool or Resource",
	"other":            "Other",
}

// IsValidContentType reports whether ct is one of the fixed classifications.
func IsValidContentType(ct string) bool {
	_, ok := contentTypeLabels[ct]
	return ok
}

// ContentTypeLabel returns the human-readable label for a content type.
func ContentTypeLabel(ct string) string {
	if label, ok := contentTypeLabels[ct]; ok {
		return label
	}
	return "Other"
}
