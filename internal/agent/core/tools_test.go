package core

import (
	"context"
	"errors"
	"testing"

	"github.com/civicworks/coachtool/internal/index"
	"github.com/civicworks/coachtool/internal/kb"
)

func testToolset(idx *fakeIndex) *Toolset {
	return &Toolset{Index: idx, Logger: testLogger(), ResultLimit: 5}
}

func TestSearchToolFallsBackToSemantic(t *testing.T) {
	idx := &fakeIndex{hybridErr: errors.New("index closed"), hits: []index.Hit{sampleHit("d1", 0)}}
	ts := testToolset(idx)

	envelope, items := ts.Execute(context.Background(), toolSearchKnowledgeBase, `{"query":"budgeting"}`)
	if idx.hybridCnt != 1 || idx.semCnt != 1 {
		t.Fatalf("expected hybrid then semantic, got hybrid=%d semantic=%d", idx.hybridCnt, idx.semCnt)
	}
	if envelope["resultCount"] != 1 {
		t.Fatalf("resultCount = %v", envelope["resultCount"])
	}
	if len(items) != 1 || items[0].DocumentID != "d1" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestSearchToolEmptyOnTotalFailure(t *testing.T) {
	idx := &fakeIndex{hybridErr: errors.New("down"), semErr: errors.New("also down")}
	ts := testToolset(idx)

	envelope, items := ts.Execute(context.Background(), toolSearchKnowledgeBase, `{"query":"budgeting"}`)
	if _, failed := envelope["error"]; failed {
		t.Fatalf("total index failure must yield empty results, not an error payload: %v", envelope)
	}
	if envelope["resultCount"] != 0 || len(items) != 0 {
		t.Fatalf("expected empty result set, got %v", envelope)
	}
}

func TestSearchToolRejectsMissingQuery(t *testing.T) {
	ts := testToolset(&fakeIndex{})
	envelope, items := ts.Execute(context.Background(), toolSearchKnowledgeBase, `{}`)
	if _, failed := envelope["error"]; !failed {
		t.Fatalf("expected error payload, got %v", envelope)
	}
	if items != nil {
		t.Fatalf("expected no items, got %+v", items)
	}
}

func TestSearchToolDropsInvalidContentTypeFilter(t *testing.T) {
	idx := &fakeIndex{hits: []index.Hit{sampleHit("d1", 0)}}
	ts := testToolset(idx)

	envelope, _ := ts.Execute(context.Background(), toolSearchKnowledgeBase, `{"query":"q","content_type_filter":"poetry"}`)
	if _, failed := envelope["error"]; failed {
		t.Fatalf("invalid filter should be dropped, not fatal: %v", envelope)
	}
	if idx.hybridCnt != 1 {
		t.Fatalf("search not executed")
	}
}

func TestDocumentDetailsSortedAndCapped(t *testing.T) {
	chunks := []kb.ChunkRecord{
		{ID: "d1::chunk-0", DocumentID: "d1", ChunkIndex: 0, TotalChunks: 2, Content: "first"},
		{ID: "d1::chunk-1", DocumentID: "d1", ChunkIndex: 1, TotalChunks: 2, Content: "second"},
	}
	idx := &fakeIndex{docChunks: chunks}
	ts := testToolset(idx)

	envelope, items := ts.Execute(context.Background(), toolGetDocumentDetails, `{"document_id":"d1"}`)
	if envelope["chunkCount"] != 2 {
		t.Fatalf("chunkCount = %v", envelope["chunkCount"])
	}
	if len(items) != 2 || items[0].ChunkIndex != 0 || items[1].ChunkIndex != 1 {
		t.Fatalf("chunks not in index order: %+v", items)
	}
	if len(idx.documented) != 1 || idx.documented[0] != "d1" {
		t.Fatalf("document lookups: %v", idx.documented)
	}
}

func TestDocumentDetailsEmptyOnFailure(t *testing.T) {
	idx := &fakeIndex{docErr: errors.New("not found")}
	ts := testToolset(idx)

	envelope, items := ts.Execute(context.Background(), toolGetDocumentDetails, `{"document_id":"ghost"}`)
	if _, failed := envelope["error"]; failed {
		t.Fatalf("lookup failure must degrade to empty, got %v", envelope)
	}
	if envelope["chunkCount"] != 0 || len(items) != 0 {
		t.Fatalf("expected empty chunks, got %v", envelope)
	}
}
