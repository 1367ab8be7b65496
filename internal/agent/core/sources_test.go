package core

import (
	"encoding/json"
	"testing"

	"github.com/civicworks/coachtool/internal/llm"
)

func TestNormalizeEvidenceBothShapes(t *testing.T) {
	results := `{"query":"q","resultCount":1,"results":[{"content":"a","title":"Doc","document_id":"d1","chunk_index":0,"total_chunks":2}]}`
	chunks := `{"document_id":"d1","chunkCount":1,"chunks":[{"content":"b","title":"Doc","document_id":"d1","chunk_index":1,"total_chunks":2}]}`

	r := NormalizeEvidence(results)
	if len(r) != 1 || r[0].Content != "a" || !r[0].hasChunkMeta {
		t.Fatalf("results shape: %+v", r)
	}
	c := NormalizeEvidence(chunks)
	if len(c) != 1 || c[0].Content != "b" || c[0].ChunkIndex != 1 {
		t.Fatalf("chunks shape: %+v", c)
	}
}

func TestNormalizeEvidenceMalformed(t *testing.T) {
	if got := NormalizeEvidence("not json"); got != nil {
		t.Fatalf("expected nil for malformed payload, got %+v", got)
	}
	if got := NormalizeEvidence(`{"error":"unknown tool"}`); len(got) != 0 {
		t.Fatalf("expected no items for error payload, got %+v", got)
	}
}

func TestDedupEvidence(t *testing.T) {
	pool := []EvidenceItem{
		{DocumentID: "1", ChunkIndex: 0, Title: "A", hasChunkMeta: true},
		{DocumentID: "1", ChunkIndex: 0, Title: "A", hasChunkMeta: true},
		{DocumentID: "1", ChunkIndex: 1, Title: "A", hasChunkMeta: true},
		{SourceLabel: "X", Section: "P", Title: "B"},
		{SourceLabel: "X", Section: "P", Title: "B"},
	}
	out := DedupEvidence(pool)
	if len(out) != 3 {
		t.Fatalf("expected 3 deduplicated items, got %d: %+v", len(out), out)
	}
	// First occurrence wins, order preserved.
	if out[0].ChunkIndex != 0 || out[1].ChunkIndex != 1 || out[2].SourceLabel != "X" {
		t.Fatalf("order not preserved: %+v", out)
	}
}

func TestCollectSourcesFromHistory(t *testing.T) {
	payload, _ := json.Marshal(map[string]interface{}{
		"query":       "q",
		"resultCount": 2,
		"results": []EvidenceItem{
			{Content: "a", Title: "Doc", Section: "Methods", DocumentID: "d1", ChunkIndex: 0, TotalChunks: 2, ContentType: "guide"},
			{Content: "a again", Title: "Doc", Section: "Methods", DocumentID: "d1", ChunkIndex: 0, TotalChunks: 2, ContentType: "guide"},
		},
	})
	msgs := []llm.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", ToolCalls: []llm.ToolCall{searchCall("t1")}},
		{Role: "tool", ToolCallID: "t1", Content: string(payload)},
		{Role: "assistant", Content: "answer"},
	}
	sources := CollectSources(msgs)
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
	s := sources[0]
	if s.Title != "Doc (Methods)" {
		t.Fatalf("title = %q", s.Title)
	}
	if s.ContentTypeLabel == "" || s.DocumentID != "d1" {
		t.Fatalf("unexpected source: %+v", s)
	}
}
