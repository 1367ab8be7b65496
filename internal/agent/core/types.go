// Package core drives tool-calling agent runs over the knowledge base:
// the loop engine, the search tools exposed to the model, the four recipes,
// and citation-source aggregation.
package core

import (
	"encoding/json"

	"github.com/civicworks/coachtool/internal/kb"
	"github.com/civicworks/coachtool/internal/llm"
)

// EvidenceItem is one normalized search result surfaced to the model.
type EvidenceItem struct {
	Content      string `json:"content"`
	Title        string `json:"title"`
	Section      string `json:"section,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	SourceLabel  string `json:"source_label,omitempty"`
	SourceURL    string `json:"source_url,omitempty"`
	ChunkIndex   int    `json:"chunk_index"`
	TotalChunks  int    `json:"total_chunks"`
	DocumentID   string `json:"document_id,omitempty"`
	hasChunkMeta bool
}

// EvidenceFromRecord maps an indexed chunk into the shape the model sees.
func EvidenceFromRecord(rec kb.ChunkRecord) EvidenceItem {
	return EvidenceItem{
		Content:      rec.Content,
		Title:        rec.DocName,
		Section:      rec.SectionName,
		ContentType:  rec.ContentType,
		SourceLabel:  rec.SourceLabel,
		SourceURL:    rec.SourceURL,
		ChunkIndex:   rec.ChunkIndex,
		TotalChunks:  rec.TotalChunks,
		DocumentID:   rec.DocumentID,
		hasChunkMeta: true,
	}
}

// NormalizeEvidence parses a tool-result payload and extracts evidence items
// from either a "results" or a "chunks" array. Unparseable payloads yield
// nil rather than an error; downstream consumers treat them as empty.
func NormalizeEvidence(payload string) []EvidenceItem {
	var envelope struct {
		Results []json.RawMessage `json:"results"`
		Chunks  []json.RawMessage `json:"chunks"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return nil
	}

	raws := envelope.Results
	if len(raws) == 0 {
		raws = envelope.Chunks
	}

	var items []EvidenceItem
	for _, raw := range raws {
		var item EvidenceItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err == nil {
			_, hasIdx := probe["chunk_index"]
			_, hasDoc := probe["document_id"]
			item.hasChunkMeta = hasIdx && hasDoc
		}
		items = append(items, item)
	}
	return items
}

// RunResult is the terminal state of one agent run.
type RunResult struct {
	// Content is the model's final free-text answer, when it produced one.
	Content string

	// Messages is the fully resolved history including tool results. In
	// resolve mode the caller issues a separate streaming completion over it.
	Messages []llm.Message

	// Iterations is the number of model calls made.
	Iterations int

	// BudgetExhausted reports that the iteration cap forced termination.
	BudgetExhausted bool

	// Evidence is the concatenated pool of every evidence item returned by
	// tools during the run, in call order, duplicates preserved.
	Evidence []EvidenceItem
}
