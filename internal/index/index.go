// Package index provides hybrid keyword+semantic search over the
// knowledge-base chunks. The SearchIndex interface is what the tool adapter
// depends on; Embedded is the in-process implementation backed by a bleve
// BM25 index and in-memory vectors.
package index

import (
	"context"

	"github.com/civicworks/coachtool/internal/kb"
)

// Query carries one search invocation's parameters.
type Query struct {
	Text        string
	ContentType string  // optional filter; empty for all
	Limit       int     // max hits; 0 uses the index default
	Alpha       float64 // vector weight in [0,1]; 0 uses the index default
}

// Hit is one scored search result.
type Hit struct {
	Chunk kb.ChunkRecord
	Score float64
}

// SearchIndex is the retrieval contract the agent tools use.
type SearchIndex interface {
	// Hybrid runs a combined keyword+semantic query.
	Hybrid(ctx context.Context, q Query) ([]Hit, error)

	// Semantic runs a vector-only query; the fallback path when the hybrid
	// query fails.
	Semantic(ctx context.Context, q Query) ([]Hit, error)

	// Document returns every chunk of one document, ascending by chunk
	// index, up to limit.
	Document(ctx context.Context, documentID string, limit int) ([]kb.ChunkRecord, error)
}

// Embedder produces query vectors. Satisfied by llm.Provider.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}
