package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/civicworks/coachtool/internal/kb"
	"github.com/civicworks/coachtool/internal/store"
)

func TestStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("coachtool"),
		tcPostgres.WithUsername("coachtool"),
		tcPostgres.WithPassword("coachtool"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://coachtool:coachtool@%s:%s/coachtool?sslmode=disable", host, port.Port())
	if err := applySchema(ctx, dsn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.Close()

	doc := store.DocumentRecord{
		ID:          "doc-1",
		Name:        "Engagement Guide",
		SourceLabel: "Engagement Guide",
		SourceURL:   "https://example.org/guide",
		DocType:     "framework",
		ContentType: "guide",
		DocDate:     "2024-01-15",
	}
	chunks := []kb.ChunkRecord{
		{ID: "doc-1::chunk-0", DocumentID: "doc-1", DocName: doc.Name, SourceLabel: doc.SourceLabel,
			SourceURL: doc.SourceURL, DocType: doc.DocType, ContentType: doc.ContentType,
			SectionName: "Methods > Sampling", ChunkIndex: 0, TotalChunks: 2, DocDate: doc.DocDate,
			Content: "Sampling approaches for community engagement.", Embedding: []float32{0.1, 0.2, 0.3}},
		{ID: "doc-1::chunk-1", DocumentID: "doc-1", DocName: doc.Name, SourceLabel: doc.SourceLabel,
			SourceURL: doc.SourceURL, DocType: doc.DocType, ContentType: doc.ContentType,
			SectionName: "Methods > Analysis", ChunkIndex: 1, TotalChunks: 2, DocDate: doc.DocDate,
			Content: "Analysis of engagement outcomes.", Embedding: []float32{0.4, 0.5, 0.6}},
	}

	if err := st.ReplaceDocumentChunks(ctx, doc, chunks); err != nil {
		t.Fatalf("replace chunks: %v", err)
	}

	got, err := st.ListChunksByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0].ChunkIndex != 0 || got[1].ChunkIndex != 1 {
		t.Fatalf("chunks not ordered by index: %d, %d", got[0].ChunkIndex, got[1].ChunkIndex)
	}
	if got[0].SectionName != "Methods > Sampling" {
		t.Fatalf("unexpected section name: %q", got[0].SectionName)
	}
	if len(got[0].Embedding) != 3 || got[0].Embedding[1] != float32(0.2) {
		t.Fatalf("embedding round trip failed: %v", got[0].Embedding)
	}

	// Re-ingestion supersedes the previous chunk set.
	if err := st.ReplaceDocumentChunks(ctx, doc, chunks[:1]); err != nil {
		t.Fatalf("replace chunks again: %v", err)
	}
	got, err = st.ListChunksByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("list chunks after replace: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk after replace, got %d", len(got))
	}

	docs, err := st.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Name != "Engagement Guide" {
		t.Fatalf("unexpected documents: %+v", docs)
	}

	all, err := st.AllChunks(ctx)
	if err != nil {
		t.Fatalf("all chunks: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 chunk in corpus, got %d", len(all))
	}

	if err := st.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("delete document: %v", err)
	}
	got, err = st.ListChunksByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("list chunks after delete: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected cascade delete of chunks, got %d", len(got))
	}

	// Case study library round trip on a fresh document.
	if err := st.ReplaceDocumentChunks(ctx, doc, chunks[:1]); err != nil {
		t.Fatalf("reinsert document: %v", err)
	}
	cs := store.CaseStudyRecord{
		DocumentID:          "doc-1",
		Title:               "Engagement Guide",
		SourceLabel:         "Engagement Guide",
		SourceURL:           "https://example.org/guide",
		Summary:             "A city-wide deliberation effort.",
		Location:            "Dublin, Ireland",
		Timeframe:           "2019-2020",
		Demographic:         "General public (18+)",
		Scale:               "large",
		Tags:                []string{"Deliberative Democracy"},
		KeyOutcomes:         []string{"Policy adopted"},
		ImplementationSteps: []string{"Recruit by civic lottery"},
		FullContent:         "Problems and Purpose. The city faced low turnout.",
	}
	if err := st.UpsertCaseStudy(ctx, cs); err != nil {
		t.Fatalf("upsert case study: %v", err)
	}
	cs.Summary = "Updated summary."
	if err := st.UpsertCaseStudy(ctx, cs); err != nil {
		t.Fatalf("upsert case study again: %v", err)
	}

	library, err := st.ListCaseStudies(ctx)
	if err != nil {
		t.Fatalf("list case studies: %v", err)
	}
	if len(library) != 1 {
		t.Fatalf("expected 1 library entry, got %d", len(library))
	}
	if library[0].Summary != "Updated summary." {
		t.Fatalf("upsert did not supersede: %q", library[0].Summary)
	}
	if library[0].FullContent != "" {
		t.Fatal("listing should not carry full content")
	}
	if len(library[0].Tags) != 1 || library[0].Tags[0] != "Deliberative Democracy" {
		t.Fatalf("tags round trip failed: %v", library[0].Tags)
	}

	full, err := st.GetCaseStudy(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get case study: %v", err)
	}
	if full.FullContent != cs.FullContent {
		t.Fatalf("full content round trip failed: %q", full.FullContent)
	}
	if _, err := st.GetCaseStudy(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown case study")
	}

	// ClearAll empties every table.
	if err := st.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	docs, err = st.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("list documents after clear: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("documents survived clear: %d", len(docs))
	}
	all, err = st.AllChunks(ctx)
	if err != nil {
		t.Fatalf("all chunks after clear: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("chunks survived clear: %d", len(all))
	}
	library, err = st.ListCaseStudies(ctx)
	if err != nil {
		t.Fatalf("list case studies after clear: %v", err)
	}
	if len(library) != 0 {
		t.Fatalf("case studies survived clear: %d", len(library))
	}
}

func applySchema(ctx context.Context, dsn string) error {
	if err := store.Migrate("file://../../migrations", dsn, "up", 0); err != nil {
		return err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema='public' AND table_name='chunks')`).Scan(&exists); err != nil {
		return fmt.Errorf("sanity check: %w", err)
	}
	if !exists {
		return fmt.Errorf("chunks table missing after migrations")
	}
	return nil
}
