// Package ingest loads source documents into the knowledge base: extract,
// clean, classify, chunk, embed, persist, index.
package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/civicworks/coachtool/config"
	"github.com/civicworks/coachtool/internal/chunker"
	"github.com/civicworks/coachtool/internal/kb"
	"github.com/civicworks/coachtool/internal/llm"
	"github.com/civicworks/coachtool/internal/store"
)

// documentIDNamespace keeps document IDs stable across runs: the same
// source/name/url always maps to the same ID, so re-ingestion supersedes
// instead of duplicating.
var documentIDNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

const minDocumentChars = 50

// ChunkStore persists a document and its chunk set.
type ChunkStore interface {
	ReplaceDocumentChunks(ctx context.Context, doc store.DocumentRecord, chunks []kb.ChunkRecord) error
}

// IndexWriter replaces a document's chunks in the search index.
type IndexWriter interface {
	ReplaceDocument(documentID string, chunks []kb.ChunkRecord) error
}

// CaseStudyStore persists case study library entries.
type CaseStudyStore interface {
	UpsertCaseStudy(ctx context.Context, cs store.CaseStudyRecord) error
}

// Pipeline runs the ingestion flow for a manifest of documents.
type Pipeline struct {
	Logger      *log.Logger
	Store       ChunkStore
	Index       IndexWriter
	Embedder    llm.Provider
	Classifier  *Classifier
	Summarizer  *Summarizer
	CaseStudies CaseStudyStore
	Cache       *redis.Client
	Config      config.IngestConfig
	Chunking    config.ChunkingConfig
	DryRun      bool
}

// Stats summarizes one ingestion run.
type Stats struct {
	Documents     int
	Skipped       int
	Chunks        int
	CaseStudies   int
	ByDocType     map[string]int
	ByContentType map[string]int
	MinChars      int
	MaxChars      int
	TotalChars    int
}

// Run ingests every manifest entry. A failed entry is logged and skipped so
// one bad document does not abort the batch.
func (p *Pipeline) Run(ctx context.Context, m *Manifest) (Stats, error) {
	stats := Stats{ByDocType: map[string]int{}, ByContentType: map[string]int{}}

	for _, entry := range m.Documents {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := p.ingestOne(ctx, entry, &stats); err != nil {
			p.Logger.Printf("skipping %q: %v", entry.Name, err)
			stats.Skipped++
		}
	}

	p.report(stats)
	return stats, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, entry ManifestEntry, stats *Stats) error {
	raw, err := p.extract(entry)
	if err != nil {
		return err
	}
	content := CleanText(raw)
	if len(content) < minDocumentChars {
		return fmt.Errorf("content too short after cleanup (%d chars)", len(content))
	}

	docID := DocumentID(entry.Source, entry.Name, entry.URL)
	docType := ClassifyDocType(entry.Source)

	// Participedia cases carry their section headers as plain text lines and
	// split at a much larger section threshold than markdown documents.
	caseStudy := IsCaseStudySource(entry.Source)
	if caseStudy {
		content = NormalizeCaseSections(content)
		docType = "participedia_case"
	}

	contentType := entry.ContentType
	if contentType == "" && caseStudy {
		contentType = "case_study"
	}
	if contentType == "" && p.Classifier != nil {
		contentType = p.Classifier.ContentType(ctx, docID, entry.Source, entry.Name, content)
	}
	if !kb.IsValidContentType(contentType) {
		contentType = ClassifyContentType(entry.Source, entry.Name)
	}

	mode := chunker.ModeSimple
	if hasHeadings(content) {
		mode = chunker.ModeStructure
	}
	chunks := chunker.ChunkDocument(content, docID, entry.Name, mode, p.chunkParams(mode, caseStudy))
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks produced")
	}

	records := make([]kb.ChunkRecord, len(chunks))
	for i, c := range chunks {
		section := c.Chapter
		if mode == chunker.ModeSimple {
			section = fmt.Sprintf("chunk_%d_of_%d", c.Index+1, c.TotalChunks)
		}
		records[i] = kb.ChunkRecord{
			ID:          c.ID,
			DocumentID:  c.DocumentID,
			DocName:     c.DocName,
			SourceLabel: entry.Source,
			SourceURL:   entry.URL,
			DocType:     docType,
			ContentType: contentType,
			SectionName: section,
			ChunkIndex:  c.Index,
			TotalChunks: c.TotalChunks,
			DocDate:     entry.Date,
			Content:     c.Content,
		}
	}

	stats.Documents++
	stats.Chunks += len(records)
	stats.ByDocType[docType] += len(records)
	stats.ByContentType[contentType] += len(records)
	for _, r := range records {
		n := len(r.Content)
		stats.TotalChars += n
		if stats.MinChars == 0 || n < stats.MinChars {
			stats.MinChars = n
		}
		if n > stats.MaxChars {
			stats.MaxChars = n
		}
	}

	if p.DryRun {
		return nil
	}

	if err := p.embedRecords(ctx, records); err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	doc := store.DocumentRecord{
		ID:          docID,
		Name:        entry.Name,
		SourceLabel: entry.Source,
		SourceURL:   entry.URL,
		DocType:     docType,
		ContentType: contentType,
		DocDate:     entry.Date,
	}
	if p.Store != nil {
		if err := p.Store.ReplaceDocumentChunks(ctx, doc, records); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}
	if p.Index != nil {
		if err := p.Index.ReplaceDocument(docID, records); err != nil {
			return fmt.Errorf("index: %w", err)
		}
	}

	// Case studies additionally join the library as whole documents with
	// structured metadata. A failed entry is logged, not fatal: the chunked
	// corpus is already in place.
	if contentType == "case_study" && p.Summarizer != nil && p.CaseStudies != nil {
		meta := p.Summarizer.Metadata(ctx, docID, entry.Name, content)
		cs := store.CaseStudyRecord{
			DocumentID:          docID,
			Title:               entry.Name,
			SourceLabel:         entry.Source,
			SourceURL:           entry.URL,
			DocDate:             entry.Date,
			Summary:             meta.Summary,
			Location:            meta.Location,
			Timeframe:           meta.Timeframe,
			Demographic:         meta.Demographic,
			Scale:               meta.Scale,
			Tags:                meta.Tags,
			KeyOutcomes:         meta.KeyOutcomes,
			ImplementationSteps: meta.ImplementationSteps,
			FullContent:         content,
		}
		if err := p.CaseStudies.UpsertCaseStudy(ctx, cs); err != nil {
			p.Logger.Printf("case study library write failed for %q: %v", entry.Name, err)
		} else {
			stats.CaseStudies++
		}
	}

	p.Logger.Printf("ingested %q: %d chunks (%s, %s)", entry.Name, len(records), docType, contentType)
	return nil
}

// extract reads the entry's file and pulls article text out of HTML via
// readability. Markdown and plain text pass through unchanged.
func (p *Pipeline) extract(entry ManifestEntry) (string, error) {
	path := entry.Path
	if !filepath.IsAbs(path) && p.Config.DocumentsDir != "" {
		path = filepath.Join(p.Config.DocumentsDir, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		base, _ := url.Parse(entry.URL)
		article, err := readability.FromReader(strings.NewReader(string(raw)), base)
		if err != nil {
			return "", fmt.Errorf("readability: %w", err)
		}
		return article.TextContent, nil
	default:
		return string(raw), nil
	}
}

// embedRecords fills in embeddings, batching calls and reusing cached
// vectors keyed by content hash.
func (p *Pipeline) embedRecords(ctx context.Context, records []kb.ChunkRecord) error {
	if p.Embedder == nil {
		return nil
	}

	batchSize := p.Config.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 64
	}

	var pending []int
	for i := range records {
		if vec := p.cachedEmbedding(ctx, records[i].Content); vec != nil {
			records[i].Embedding = vec
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		inputs := make([]string, len(batch))
		for j, idx := range batch {
			inputs[j] = records[idx].Content
		}
		vecs, err := p.Embedder.Embed(ctx, inputs)
		if err != nil {
			return err
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embedding count mismatch: want %d, got %d", len(batch), len(vecs))
		}
		for j, idx := range batch {
			records[idx].Embedding = vecs[j]
			p.storeEmbedding(ctx, records[idx].Content, vecs[j])
		}
	}
	return nil
}

func (p *Pipeline) cachedEmbedding(ctx context.Context, content string) []float32 {
	if p.Cache == nil {
		return nil
	}
	raw, err := p.Cache.Get(ctx, embeddingCacheKey(content)).Bytes()
	if err != nil {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil
	}
	return vec
}

func (p *Pipeline) storeEmbedding(ctx context.Context, content string, vec []float32) {
	if p.Cache == nil {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	ttl := p.Config.CacheTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if err := p.Cache.Set(ctx, embeddingCacheKey(content), raw, ttl).Err(); err != nil {
		p.Logger.Printf("embedding cache write failed: %v", err)
	}
}

func embeddingCacheKey(content string) string {
	sum := sha1.Sum([]byte(content))
	return "coachtool:embed:" + hex.EncodeToString(sum[:])
}

// DocumentID derives the stable document ID for a source/name/url triple.
func DocumentID(source, name, sourceURL string) string {
	u := uuid.NewSHA1(documentIDNamespace, []byte(fmt.Sprintf("dane|%s|%s|%s", source, name, sourceURL)))
	return hex.EncodeToString(u[:])
}

// chunkParams maps the configured size constants onto the chunker. Zero
// values fall through to the chunker's built-in defaults. Case studies keep
// whole sections together up to the long-section threshold.
func (p *Pipeline) chunkParams(mode chunker.Mode, caseStudy bool) chunker.Params {
	if mode == chunker.ModeStructure {
		if caseStudy {
			maxChars := p.Chunking.LongSectionMax
			if maxChars <= 0 {
				maxChars = 8000
			}
			return chunker.Params{
				MaxChars: maxChars,
				Overlap:  p.Chunking.MarkdownOverlap,
				MinChars: p.Chunking.MinChunkChars,
			}
		}
		return chunker.Params{
			MaxChars: p.Chunking.MarkdownMaxChars,
			Overlap:  p.Chunking.MarkdownOverlap,
			MinChars: p.Chunking.MinChunkChars,
		}
	}
	return chunker.Params{
		MaxChars: p.Chunking.SlidingWindowSize,
		Overlap:  p.Chunking.SlidingOverlap,
		MinChars: p.Chunking.MinChunkChars,
	}
}

func hasHeadings(text string) bool {
	for _, sec := range chunker.ParseSections(text) {
		if sec.Title != "" {
			return true
		}
	}
	return false
}

func (p *Pipeline) report(stats Stats) {
	p.Logger.Printf("ingestion complete: %d documents, %d chunks, %d skipped", stats.Documents, stats.Chunks, stats.Skipped)
	if stats.CaseStudies > 0 {
		p.Logger.Printf("  case study library: %d entries", stats.CaseStudies)
	}

	types := make([]string, 0, len(stats.ByDocType))
	for t := range stats.ByDocType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		p.Logger.Printf("  doc_type %-22s %6d", t, stats.ByDocType[t])
	}

	ctypes := make([]string, 0, len(stats.ByContentType))
	for t := range stats.ByContentType {
		ctypes = append(ctypes, t)
	}
	sort.Strings(ctypes)
	for _, t := range ctypes {
		p.Logger.Printf("  content_type %-18s %6d", t, stats.ByContentType[t])
	}

	if stats.Chunks > 0 {
		p.Logger.Printf("  chunk chars: min=%d max=%d avg=%d", stats.MinChars, stats.MaxChars, stats.TotalChars/stats.Chunks)
	}
}
