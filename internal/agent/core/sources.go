package core

import (
	"fmt"

	"github.com/civicworks/coachtool/internal/kb"
	"github.com/civicworks/coachtool/internal/llm"
)

// SourceOutput is the citation shape serialized to the client.
type SourceOutput struct {
	Title            string `json:"title"`
	SourceLabel      string `json:"sourceLabel,omitempty"`
	SourceURL        string `json:"sourceUrl,omitempty"`
	ContentType      string `json:"contentType,omitempty"`
	ContentTypeLabel string `json:"contentTypeLabel,omitempty"`
	SectionPath      string `json:"sectionPath,omitempty"`
	ChunkIndex       int    `json:"chunkIndex"`
	TotalChunks      int    `json:"totalChunks"`
	DocumentID       string `json:"documentId,omitempty"`
}

// CollectSources scans the resolved history's tool messages, normalizes the
// evidence they carry, and returns the deduplicated citation list.
func CollectSources(messages []llm.Message) []SourceOutput {
	var pool []EvidenceItem
	for _, msg := range messages {
		if msg.Role != "tool" {
			continue
		}
		pool = append(pool, NormalizeEvidence(msg.Content)...)
	}
	return DedupEvidence(pool)
}

// DedupEvidence removes duplicate evidence: by (document ID, chunk index)
// when the item carries chunk metadata, else by (source label, section).
// First occurrence wins; order is otherwise preserved.
func DedupEvidence(pool []EvidenceItem) []SourceOutput {
	seen := map[string]bool{}
	out := make([]SourceOutput, 0, len(pool))
	for _, item := range pool {
		var key string
		if item.DocumentID != "" && item.hasChunkMeta {
			key = fmt.Sprintf("doc|%s|%d", item.DocumentID, item.ChunkIndex)
		} else {
			key = fmt.Sprintf("lbl|%s|%s", item.SourceLabel, item.Section)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sourceOutput(item))
	}
	return out
}

func sourceOutput(item EvidenceItem) SourceOutput {
	title := item.Title
	if item.Section != "" {
		title = fmt.Sprintf("%s (%s)", item.Title, item.Section)
	}
	return SourceOutput{
		Title:            title,
		SourceLabel:      item.SourceLabel,
		SourceURL:        item.SourceURL,
		ContentType:      item.ContentType,
		ContentTypeLabel: kb.ContentTypeLabel(item.ContentType),
		SectionPath:      item.Section,
		ChunkIndex:       item.ChunkIndex,
		TotalChunks:      item.TotalChunks,
		DocumentID:       item.DocumentID,
	}
}
