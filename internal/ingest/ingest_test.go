package ingest

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/civicworks/coachtool/config"
	"github.com/civicworks/coachtool/internal/kb"
	"github.com/civicworks/coachtool/internal/store"
)

func TestCleanTextStripsMarkers(t *testing.T) {
	in := "Citizens assembled [1] in Dublin.[note 2]\n\n\n\nThey   deliberated\tfor months."
	got := CleanText(in)
	want := "Citizens assembled in Dublin.\n\nThey deliberated for months."
	if got != want {
		t.Fatalf("CleanText = %q, want %q", got, want)
	}
}

func TestCleanTextEmpty(t *testing.T) {
	if got := CleanText("   \n\n  "); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestClassifyContentType(t *testing.T) {
	cases := []struct {
		source, name, want string
	}{
		{"Lecture Series Vol 2", "Week 3", "lecture"},
		{"Community Blog", "Post", "blog_post"},
		{"Journal of Deliberative Democracy", "Paper", "journal_article"},
		{"GovLab", "Anything", "report"},
		{"POPVOX Foundation", "Brief", "policy_brief"},
		{"Participedia", "Dublin Case Study", "case_study"},
		{"Engagement Toolkit", "Facilitation tool", "tool_or_resource"},
		{"Unknown Source", "Untitled", "other"},
	}
	for _, tc := range cases {
		if got := ClassifyContentType(tc.source, tc.name); got != tc.want {
			t.Errorf("ClassifyContentType(%q, %q) = %q, want %q", tc.source, tc.name, got, tc.want)
		}
	}
}

func TestClassifyContentTypeTranscriptBeatsLecture(t *testing.T) {
	// The transcript rule is checked before the lecture rule.
	if got := ClassifyContentType("Lecture transcripts", "Session 1"); got != "transcript" {
		t.Fatalf("got %q, want transcript", got)
	}
}

func TestClassifyDocType(t *testing.T) {
	cases := []struct {
		source, want string
	}{
		{"Filtered Reboot posts", "reboot_democracy"},
		{"The GovLab", "govlab_resource"},
		{"Guest Lecture", "lecture_series"},
		{"Interview transcript", "transcript"},
		{"DemocracyNext", "policy_resource"},
		{"Journal articles", "academic_paper"},
		{"Some NGO", "external_resource"},
	}
	for _, tc := range cases {
		if got := ClassifyDocType(tc.source); got != tc.want {
			t.Errorf("ClassifyDocType(%q) = %q, want %q", tc.source, got, tc.want)
		}
	}
}

func TestDocumentIDStable(t *testing.T) {
	a := DocumentID("Participedia", "Dublin Assembly", "https://example.org/a")
	b := DocumentID("Participedia", "Dublin Assembly", "https://example.org/a")
	c := DocumentID("Participedia", "Dublin Assembly", "https://example.org/b")
	if a != b {
		t.Fatalf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("different inputs produced the same ID")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d (%s)", len(a), a)
	}
}

func TestLoadManifestValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	if err := os.WriteFile(path, []byte(`{"documents":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected error for empty manifest")
	}

	if err := os.WriteFile(path, []byte(`{"documents":[{"name":"Doc","source":"Src","path":"doc.md"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}
	if len(m.Documents) != 1 || m.Documents[0].Name != "Doc" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}

type captureStore struct {
	docs   []store.DocumentRecord
	chunks map[string][]kb.ChunkRecord
}

func (c *captureStore) ReplaceDocumentChunks(_ context.Context, doc store.DocumentRecord, chunks []kb.ChunkRecord) error {
	if c.chunks == nil {
		c.chunks = map[string][]kb.ChunkRecord{}
	}
	c.docs = append(c.docs, doc)
	c.chunks[doc.ID] = chunks
	return nil
}

type captureIndex struct {
	replaced map[string]int
}

func (c *captureIndex) ReplaceDocument(documentID string, chunks []kb.ChunkRecord) error {
	if c.replaced == nil {
		c.replaced = map[string]int{}
	}
	c.replaced[documentID] = len(chunks)
	return nil
}

func writeTestDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testPipeline(dir string, st ChunkStore, idx IndexWriter, dryRun bool) *Pipeline {
	return &Pipeline{
		Logger: log.New(os.Stderr, "[TEST] ", log.LstdFlags),
		Store:  st,
		Index:  idx,
		Config: config.IngestConfig{DocumentsDir: dir},
		DryRun: dryRun,
	}
}

func TestPipelineDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	writeTestDoc(t, dir, "guide.md", "# Sampling\n\n"+strings.Repeat("Recruit participants carefully. ", 10))

	st := &captureStore{}
	idx := &captureIndex{}
	p := testPipeline(dir, st, idx, true)

	m := &Manifest{Documents: []ManifestEntry{
		{Name: "Engagement Guide", Source: "GovLab", Path: "guide.md"},
	}}
	stats, err := p.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Documents != 1 || stats.Chunks == 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(st.docs) != 0 || len(idx.replaced) != 0 {
		t.Fatalf("dry run wrote to store or index")
	}
}

func TestPipelinePersistsAndIndexes(t *testing.T) {
	dir := t.TempDir()
	writeTestDoc(t, dir, "guide.md", "# Methods\n\n## Sampling\n\n"+strings.Repeat("Recruit participants from every district. ", 10))
	writeTestDoc(t, dir, "tiny.md", "too short")

	st := &captureStore{}
	idx := &captureIndex{}
	p := testPipeline(dir, st, idx, false)

	m := &Manifest{Documents: []ManifestEntry{
		{Name: "Engagement Guide", Source: "GovLab guides", Path: "guide.md", Date: "2024-01-15"},
		{Name: "Tiny", Source: "X", Path: "tiny.md"},
	}}
	stats, err := p.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Documents != 1 {
		t.Fatalf("expected 1 document ingested, got %d", stats.Documents)
	}
	if stats.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", stats.Skipped)
	}

	if len(st.docs) != 1 {
		t.Fatalf("expected 1 stored document, got %d", len(st.docs))
	}
	doc := st.docs[0]
	if doc.DocType != "govlab_resource" {
		t.Fatalf("doc type = %q", doc.DocType)
	}
	if doc.ContentType != "guide" {
		t.Fatalf("content type = %q", doc.ContentType)
	}

	chunks := st.chunks[doc.ID]
	if len(chunks) == 0 {
		t.Fatal("no chunks stored")
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Fatalf("chunk %d has index %d", i, c.ChunkIndex)
		}
		if c.TotalChunks != len(chunks) {
			t.Fatalf("chunk %d total = %d, want %d", i, c.TotalChunks, len(chunks))
		}
		if c.DocDate != "2024-01-15" {
			t.Fatalf("chunk %d date = %q", i, c.DocDate)
		}
	}

	if idx.replaced[doc.ID] != len(chunks) {
		t.Fatalf("index got %d chunks, store got %d", idx.replaced[doc.ID], len(chunks))
	}
}

func TestNormalizeCaseSections(t *testing.T) {
	in := "Problems and Purpose\nThe city faced low turnout.\nMethods and Tools Used\nA civic lottery was run.\nSome other line\n"
	got := NormalizeCaseSections(in)
	if !strings.Contains(got, "## Problems and Purpose\n") {
		t.Fatalf("first header not normalized:\n%s", got)
	}
	if !strings.Contains(got, "## Methods and Tools Used\n") {
		t.Fatalf("second header not normalized:\n%s", got)
	}
	if strings.Contains(got, "## Some other line") {
		t.Fatalf("non-header line was rewritten:\n%s", got)
	}
}

func TestPipelineCaseStudyPath(t *testing.T) {
	dir := t.TempDir()
	body := "Problems and Purpose\n\nThe city faced low turnout in planning consultations for years on end.\n\n" +
		"Methods and Tools Used\n\n" + strings.Repeat("A civic lottery selected forty residents for the panel. ", 4)
	writeTestDoc(t, dir, "dublin.txt", body)

	st := &captureStore{}
	p := testPipeline(dir, st, nil, false)

	m := &Manifest{Documents: []ManifestEntry{
		{Name: "Dublin Assembly", Source: "Participedia Case Studies", Path: "dublin.txt", URL: "https://example.org/dublin"},
	}}
	if _, err := p.Run(context.Background(), m); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(st.docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(st.docs))
	}
	doc := st.docs[0]
	if doc.DocType != "participedia_case" {
		t.Fatalf("doc type = %q", doc.DocType)
	}
	if doc.ContentType != "case_study" {
		t.Fatalf("content type = %q", doc.ContentType)
	}

	chunks := st.chunks[doc.ID]
	if len(chunks) != 2 {
		t.Fatalf("expected one chunk per case section, got %d", len(chunks))
	}
	if chunks[0].SectionName != "Problems and Purpose" {
		t.Fatalf("section name = %q", chunks[0].SectionName)
	}
	if chunks[1].SectionName != "Methods and Tools Used" {
		t.Fatalf("section name = %q", chunks[1].SectionName)
	}
}

type captureLibrary struct {
	entries []store.CaseStudyRecord
}

func (c *captureLibrary) UpsertCaseStudy(_ context.Context, cs store.CaseStudyRecord) error {
	c.entries = append(c.entries, cs)
	return nil
}

func TestPipelineBuildsCaseStudyLibrary(t *testing.T) {
	dir := t.TempDir()
	body := "Problems and Purpose\n\nThe city faced low turnout in planning consultations for years on end.\n\n" +
		"Methods and Tools Used\n\n" + strings.Repeat("A civic lottery selected forty residents for the panel. ", 4)
	writeTestDoc(t, dir, "dublin.txt", body)
	writeTestDoc(t, dir, "guide.md", "# Sampling\n\n"+strings.Repeat("Recruit participants carefully. ", 10))

	st := &captureStore{}
	lib := &captureLibrary{}
	p := testPipeline(dir, st, nil, false)
	p.CaseStudies = lib
	p.Summarizer = newTestSummarizer(&cannedProvider{content: `{
		"summary": "A civic lottery panel tackled low turnout.",
		"location": "Dublin, Ireland",
		"scale": "medium",
		"tags": ["Civic Lottery"]
	}`})

	m := &Manifest{Documents: []ManifestEntry{
		{Name: "Dublin Assembly", Source: "Participedia Case Studies", Path: "dublin.txt", URL: "https://example.org/dublin"},
		{Name: "Engagement Guide", Source: "GovLab guides", Path: "guide.md"},
	}}
	stats, err := p.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.CaseStudies != 1 {
		t.Fatalf("expected 1 library entry in stats, got %d", stats.CaseStudies)
	}
	if len(lib.entries) != 1 {
		t.Fatalf("expected only the case study in the library, got %d entries", len(lib.entries))
	}

	cs := lib.entries[0]
	if cs.DocumentID != DocumentID("Participedia Case Studies", "Dublin Assembly", "https://example.org/dublin") {
		t.Fatalf("library entry has wrong document ID: %s", cs.DocumentID)
	}
	if cs.Title != "Dublin Assembly" || cs.SourceURL != "https://example.org/dublin" {
		t.Fatalf("unexpected entry %+v", cs)
	}
	if cs.Summary != "A civic lottery panel tackled low turnout." {
		t.Fatalf("summary = %q", cs.Summary)
	}
	if !strings.Contains(cs.FullContent, "civic lottery selected forty residents") {
		t.Fatalf("full content missing: %q", cs.FullContent)
	}
}

func TestPipelineDryRunSkipsCaseStudyLibrary(t *testing.T) {
	dir := t.TempDir()
	writeTestDoc(t, dir, "dublin.txt",
		"Problems and Purpose\n\n"+strings.Repeat("The city faced low turnout in consultations. ", 4))

	lib := &captureLibrary{}
	p := testPipeline(dir, &captureStore{}, nil, true)
	p.CaseStudies = lib
	p.Summarizer = newTestSummarizer(&cannedProvider{content: `{"summary": "s"}`})

	m := &Manifest{Documents: []ManifestEntry{
		{Name: "Dublin Assembly", Source: "Participedia Case Studies", Path: "dublin.txt"},
	}}
	if _, err := p.Run(context.Background(), m); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(lib.entries) != 0 {
		t.Fatalf("dry run wrote %d library entries", len(lib.entries))
	}
}

func TestPipelineSimpleModeSectionNames(t *testing.T) {
	dir := t.TempDir()
	// No headings: sliding-window chunking with positional section names.
	writeTestDoc(t, dir, "plain.txt", strings.Repeat("Citizens deliberated about the budget. ", 60))

	st := &captureStore{}
	p := testPipeline(dir, st, nil, false)

	m := &Manifest{Documents: []ManifestEntry{
		{Name: "Plain Notes", Source: "Community Blog", Path: "plain.txt"},
	}}
	if _, err := p.Run(context.Background(), m); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(st.docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(st.docs))
	}
	chunks := st.chunks[st.docs[0].ID]
	if len(chunks) < 2 {
		t.Fatalf("expected multiple window chunks, got %d", len(chunks))
	}
	want := "chunk_1_of_" + strconv.Itoa(len(chunks))
	if chunks[0].SectionName != want {
		t.Fatalf("section name = %q, want %q", chunks[0].SectionName, want)
	}
}
