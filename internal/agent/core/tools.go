package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/civicworks/coachtool/internal/agent/telemetry"
	"github.com/civicworks/coachtool/internal/index"
	"github.com/civicworks/coachtool/internal/kb"
	"github.com/civicworks/coachtool/internal/llm"
)

const (
	toolSearchKnowledgeBase = "search_knowledge_base"
	toolGetDocumentDetails  = "get_document_details"
)

const documentChunkCap = 50

// Toolset exposes the search index to the model as callable tools. It never
// returns a Go error to the loop for index trouble: failures degrade to
// empty result sets so a flaky index cannot abort a run.
type Toolset struct {
	Index       index.SearchIndex
	Logger      *log.Logger
	Metrics     *telemetry.Metrics
	ResultLimit int
	ChunkCap    int
}

// Definitions returns the tool schemas advertised to the model.
func (t *Toolset) Definitions() []llm.Tool {
	return []llm.Tool{
		{
			Type: "function",
			Function: llm.ToolFunction{
				Name: toolSearchKnowledgeBase,
				Description: "Search the public engagement knowledge base for relevant material. " +
					"Returns matching excerpts with their source documents.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"query": map[string]interface{}{
							"type":        "string",
							"description": "Free-text search query.",
						},
						"content_type_filter": map[string]interface{}{
							"type":        "string",
							"enum":        kb.ContentTypes,
							"description": "Optional: restrict results to one content type.",
						},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			Type: "function",
			Function: llm.ToolFunction{
				Name: toolGetDocumentDetails,
				Description: "Fetch all chunks of one document by its document_id, in order. " +
					"Use after a search surfaces a document worth reading in full.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"document_id": map[string]interface{}{
							"type":        "string",
							"description": "Document identifier from a prior search result.",
						},
					},
					"required": []string{"document_id"},
				},
			},
		},
	}
}

// Execute runs one named tool call. The returned envelope is the payload
// for the tool message; tool-level failures are encoded into it as an
// "error" field rather than returned, so a run never aborts on tool trouble.
func (t *Toolset) Execute(ctx context.Context, name, arguments string) (map[string]interface{}, []EvidenceItem) {
	switch name {
	case toolSearchKnowledgeBase:
		return t.searchKnowledgeBase(ctx, arguments)
	case toolGetDocumentDetails:
		return t.getDocumentDetails(ctx, arguments)
	default:
		t.Logger.Printf("model requested unknown tool %q", name)
		return map[string]interface{}{
			"error": fmt.Sprintf("unknown tool: %s", name),
		}, nil
	}
}

func (t *Toolset) searchKnowledgeBase(ctx context.Context, arguments string) (map[string]interface{}, []EvidenceItem) {
	var args struct {
		Query             string `json:"query"`
		ContentTypeFilter string `json:"content_type_filter"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.Query == "" {
		return map[string]interface{}{
			"error": "search_knowledge_base requires a non-empty query",
		}, nil
	}
	if args.ContentTypeFilter != "" && !kb.IsValidContentType(args.ContentTypeFilter) {
		args.ContentTypeFilter = ""
	}

	if t.Metrics != nil {
		t.Metrics.SearchQueries.WithLabelValues("hybrid").Inc()
	}
	q := index.Query{Text: args.Query, ContentType: args.ContentTypeFilter, Limit: t.ResultLimit}
	hits, err := t.Index.Hybrid(ctx, q)
	if err != nil {
		t.Logger.Printf("hybrid search failed for %q, retrying semantic-only: %v", args.Query, err)
		if t.Metrics != nil {
			t.Metrics.SearchQueries.WithLabelValues("semantic_fallback").Inc()
		}
		hits, err = t.Index.Semantic(ctx, q)
		if err != nil {
			t.Logger.Printf("semantic fallback failed for %q: %v", args.Query, err)
			hits = nil
		}
	}

	items := make([]EvidenceItem, 0, len(hits))
	for _, h := range hits {
		items = append(items, EvidenceFromRecord(h.Chunk))
	}
	return map[string]interface{}{
		"query":       args.Query,
		"resultCount": len(items),
		"results":     items,
	}, items
}

func (t *Toolset) getDocumentDetails(ctx context.Context, arguments string) (map[string]interface{}, []EvidenceItem) {
	var args struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.DocumentID == "" {
		return map[string]interface{}{
			"error": "get_document_details requires a document_id",
		}, nil
	}

	limit := t.ChunkCap
	if limit <= 0 {
		limit = documentChunkCap
	}
	chunks, err := t.Index.Document(ctx, args.DocumentID, limit)
	if err != nil {
		t.Logger.Printf("document fetch failed for %s: %v", args.DocumentID, err)
		chunks = nil
	}

	items := make([]EvidenceItem, 0, len(chunks))
	for _, c := range chunks {
		items = append(items, EvidenceFromRecord(c))
	}
	return map[string]interface{}{
		"document_id": args.DocumentID,
		"chunkCount":  len(items),
		"chunks":      items,
	}, items
}

func marshalPayload(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return `{"error":"internal: failed to encode tool result"}`
	}
	return string(raw)
}
