package ingest

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/civicworks/coachtool/internal/llm"
)

type cannedProvider struct {
	content  string
	err      error
	requests []llm.ChatRequest
}

func (p *cannedProvider) ChatCompletion(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return llm.ChatResponse{}, p.err
	}
	return llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: p.content}}, nil
}

func (p *cannedProvider) StreamChatCompletion(ctx context.Context, req llm.ChatRequest, onDelta func(string) error) (llm.ChatResponse, error) {
	return p.ChatCompletion(ctx, req)
}

func (p *cannedProvider) Embed(_ context.Context, input []string) ([][]float32, error) {
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func newTestSummarizer(p llm.Provider) *Summarizer {
	return &Summarizer{
		Provider: p,
		Model:    "gpt-test",
		Logger:   log.New(os.Stderr, "[TEST] ", log.LstdFlags),
	}
}

func TestSummarizerExtractsMetadata(t *testing.T) {
	provider := &cannedProvider{content: `{
		"summary": "Residents allocated part of the city budget.",
		"location": "Dublin, Ireland",
		"timeframe": "2019-2020",
		"demographic": "General public (18+)",
		"scale": "large",
		"tags": ["Deliberative Democracy", "Budgeting"],
		"key_outcomes": ["Policy adopted"],
		"implementation_steps": ["Recruit by civic lottery", "Run weekend sessions"]
	}`}
	s := newTestSummarizer(provider)

	meta := s.Metadata(context.Background(), "doc-1", "Dublin Assembly", "full text")

	if meta.Summary != "Residents allocated part of the city budget." {
		t.Fatalf("summary = %q", meta.Summary)
	}
	if meta.Location != "Dublin, Ireland" || meta.Scale != "large" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if len(meta.Tags) != 2 || len(meta.ImplementationSteps) != 2 {
		t.Fatalf("lists not preserved: %+v", meta)
	}

	req := provider.requests[0]
	if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
		t.Fatalf("summarization must request a json_object response, got %+v", req.ResponseFormat)
	}
}

func TestSummarizerSanitizesBadFields(t *testing.T) {
	provider := &cannedProvider{content: `{
		"summary": "s",
		"scale": "gigantic",
		"tags": ["a", "b", "c", "d", "e", "f"],
		"key_outcomes": ["1", "2", "3", "4", "5", "6"],
		"implementation_steps": []
	}`}
	s := newTestSummarizer(provider)

	meta := s.Metadata(context.Background(), "doc-1", "Title", "text")

	if meta.Scale != "medium" {
		t.Fatalf("invalid scale not defaulted: %q", meta.Scale)
	}
	if len(meta.Tags) != 4 {
		t.Fatalf("tags not capped at 4: %v", meta.Tags)
	}
	if len(meta.KeyOutcomes) != 5 {
		t.Fatalf("outcomes not capped at 5: %v", meta.KeyOutcomes)
	}
	if meta.Location != "Not specified" || meta.Timeframe != "Not specified" {
		t.Fatalf("missing fields not filled: %+v", meta)
	}
}

func TestSummarizerFailureFallsBackToTitle(t *testing.T) {
	s := newTestSummarizer(&cannedProvider{err: errors.New("model unavailable")})

	meta := s.Metadata(context.Background(), "doc-1", "Dublin Assembly", "text")

	if meta.Summary != "Case study: Dublin Assembly" {
		t.Fatalf("fallback summary = %q", meta.Summary)
	}
	if meta.Scale != "medium" || meta.Location != "Not specified" {
		t.Fatalf("fallback metadata %+v", meta)
	}
}

func TestSummarizerTruncatesLongContent(t *testing.T) {
	provider := &cannedProvider{content: `{"summary": "s"}`}
	s := newTestSummarizer(provider)

	long := make([]byte, summaryContentChars+500)
	for i := range long {
		long[i] = 'x'
	}
	s.Metadata(context.Background(), "doc-1", "Title", string(long))

	prompt := provider.requests[0].Messages[1].Content
	if len(prompt) > summaryContentChars+100 {
		t.Fatalf("prompt carries untruncated content: %d chars", len(prompt))
	}
}
