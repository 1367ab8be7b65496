package index

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"

	"github.com/civicworks/coachtool/config"
	"github.com/civicworks/coachtool/internal/kb"
)

// Embedded is an in-process hybrid index: bleve for BM25 keyword scoring,
// in-memory vectors for semantic scoring. It is rebuilt from the store at
// startup; the store remains the system of record.
type Embedded struct {
	mu       sync.RWMutex
	idx      bleve.Index
	records  map[string]kb.ChunkRecord
	byDoc    map[string][]string // document ID -> chunk IDs, ascending index
	embedder Embedder
	alpha    float64
	limit    int
	pool     int
	logger   *log.Logger
}

// NewEmbedded creates an empty index. Call Reset or ReplaceDocument to load.
func NewEmbedded(cfg config.SearchConfig, embedder Embedder, logger *log.Logger) (*Embedded, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("creating bleve index: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[INDEX] ", log.LstdFlags)
	}
	alpha := cfg.HybridAlpha
	if alpha <= 0 || alpha > 1 {
		alpha = 0.6
	}
	limit := cfg.ResultLimit
	if limit <= 0 {
		limit = 5
	}
	pool := cfg.CandidatePool
	if pool <= 0 {
		pool = 50
	}
	return &Embedded{
		idx:      idx,
		records:  make(map[string]kb.ChunkRecord),
		byDoc:    make(map[string][]string),
		embedder: embedder,
		alpha:    alpha,
		limit:    limit,
		pool:     pool,
		logger:   logger,
	}, nil
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	doc.AddFieldMappingsAt("content", content)

	// Exact-match field for content-type filtering.
	ct := bleve.NewTextFieldMapping()
	ct.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("content_type", ct)

	im.DefaultMapping = doc
	return im
}

// Reset replaces the entire index contents.
func (e *Embedded) Reset(records []kb.ChunkRecord) error {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return fmt.Errorf("creating bleve index: %w", err)
	}
	batch := idx.NewBatch()
	recMap := make(map[string]kb.ChunkRecord, len(records))
	byDoc := make(map[string][]string)
	for _, rec := range records {
		if err := batch.Index(rec.ID, indexable(rec)); err != nil {
			return fmt.Errorf("indexing chunk %s: %w", rec.ID, err)
		}
		recMap[rec.ID] = rec
		byDoc[rec.DocumentID] = append(byDoc[rec.DocumentID], rec.ID)
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("applying index batch: %w", err)
	}
	sortDocChunks(byDoc, recMap)

	e.mu.Lock()
	old := e.idx
	e.idx = idx
	e.records = recMap
	e.byDoc = byDoc
	e.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	e.logger.Printf("index reset: %d chunks across %d documents", len(recMap), len(byDoc))
	return nil
}

// ReplaceDocument swaps one document's chunks, mirroring the store's
// delete-then-insert re-ingestion semantics.
func (e *Embedded) ReplaceDocument(documentID string, chunks []kb.ChunkRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.byDoc[documentID] {
		if err := e.idx.Delete(id); err != nil {
			return fmt.Errorf("deleting chunk %s: %w", id, err)
		}
		delete(e.records, id)
	}
	delete(e.byDoc, documentID)

	batch := e.idx.NewBatch()
	ids := make([]string, 0, len(chunks))
	for _, rec := range chunks {
		if err := batch.Index(rec.ID, indexable(rec)); err != nil {
			return fmt.Errorf("indexing chunk %s: %w", rec.ID, err)
		}
		e.records[rec.ID] = rec
		ids = append(ids, rec.ID)
	}
	if err := e.idx.Batch(batch); err != nil {
		return fmt.Errorf("applying index batch: %w", err)
	}
	if len(ids) > 0 {
		sort.Slice(ids, func(i, j int) bool {
			return e.records[ids[i]].ChunkIndex < e.records[ids[j]].ChunkIndex
		})
		e.byDoc[documentID] = ids
	}
	return nil
}

func indexable(rec kb.ChunkRecord) map[string]interface{} {
	return map[string]interface{}{
		"content":      rec.Content,
		"content_type": rec.ContentType,
	}
}

func sortDocChunks(byDoc map[string][]string, records map[string]kb.ChunkRecord) {
	for _, ids := range byDoc {
		sort.Slice(ids, func(i, j int) bool {
			return records[ids[i]].ChunkIndex < records[ids[j]].ChunkIndex
		})
	}
}

// Hybrid runs keyword and semantic scoring and merges with the configured
// alpha weighting. If the query embedding fails, keyword scores alone are
// returned rather than failing the search.
func (e *Embedded) Hybrid(ctx context.Context, q Query) ([]Hit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = e.limit
	}
	alpha := q.Alpha
	if alpha <= 0 || alpha > 1 {
		alpha = e.alpha
	}

	kwScores, err := e.keywordScores(ctx, q)
	if err != nil {
		return nil, err
	}

	vecScores := map[string]float64{}
	if vec, err := e.queryVector(ctx, q.Text); err != nil {
		e.logger.Printf("query embedding failed, keyword-only: %v", err)
		alpha = 0
	} else {
		vecScores = e.vectorScores(vec, q.ContentType)
	}

	merged := make(map[string]float64, len(kwScores)+len(vecScores))
	var maxKw float64
	for _, s := range kwScores {
		if s > maxKw {
			maxKw = s
		}
	}
	for id, s := range kwScores {
		norm := s
		if maxKw > 0 {
			norm = s / maxKw
		}
		merged[id] += (1 - alpha) * norm
	}
	for id, s := range vecScores {
		merged[id] += alpha * s
	}

	return e.topHits(merged, limit), nil
}

// Semantic runs a vector-only query.
func (e *Embedded) Semantic(ctx context.Context, q Query) ([]Hit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = e.limit
	}
	vec, err := e.queryVector(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return e.topHits(e.vectorScores(vec, q.ContentType), limit), nil
}

// Document returns all chunks of the given document, ascending by index.
func (e *Embedded) Document(_ context.Context, documentID string, limit int) ([]kb.ChunkRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.byDoc[documentID]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]kb.ChunkRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.records[id])
	}
	return out, nil
}

// Size returns the number of indexed chunks.
func (e *Embedded) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}

func (e *Embedded) keywordScores(ctx context.Context, q Query) (map[string]float64, error) {
	mq := bleve.NewMatchQuery(q.Text)
	mq.SetField("content")
	var full query.Query = mq
	if q.ContentType != "" {
		tq := bleve.NewTermQuery(q.ContentType)
		tq.SetField("content_type")
		full = bleve.NewConjunctionQuery(mq, tq)
	}
	req := bleve.NewSearchRequestOptions(full, e.pool, 0, false)

	e.mu.RLock()
	idx := e.idx
	e.mu.RUnlock()
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	scores := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		scores[hit.ID] = hit.Score
	}
	return scores, nil
}

func (e *Embedded) queryVector(ctx context.Context, text string) ([]float32, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	vecs, err := e.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}
	return vecs[0], nil
}

func (e *Embedded) vectorScores(vec []float32, contentType string) map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	scores := make(map[string]float64)
	for id, rec := range e.records {
		if contentType != "" && rec.ContentType != contentType {
			continue
		}
		if len(rec.Embedding) == 0 {
			continue
		}
		sim := cosine(vec, rec.Embedding)
		if sim <= 0 {
			continue
		}
		scores[id] = sim
	}
	return scores
}

func (e *Embedded) topHits(scores map[string]float64, limit int) []Hit {
	e.mu.RLock()
	defer e.mu.RUnlock()
	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		rec, ok := e.records[id]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Chunk: rec, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
