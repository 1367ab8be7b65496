package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicworks/coachtool/internal/llm"
)

const summarySystem = `You are a public engagement expert. Given the full text of a case study about public engagement or participatory governance, extract structured metadata.

Return a JSON object with exactly these fields:
- "summary": A 2-3 paragraph summary of the case study (string)
- "location": The geographic location where this took place (string, e.g. "Toronto, Canada")
- "timeframe": The duration or time period (string, e.g. "6 months", "2019-2020")
- "demographic": The target demographic or participants (string, e.g. "General public (18+)")
- "scale": One of "small", "medium", or "large" based on scope/participant count
- "tags": 2-4 topic tags (array of strings, e.g. ["Deliberative Democracy", "Climate Action"])
- "key_outcomes": 3-5 key outcomes as bullet points (array of strings)
- "implementation_steps": 3-5 implementation steps as bullet points (array of strings)

If information is not available for a field, provide a reasonable inference based on context or use "Not specified".
Return ONLY valid JSON, no markdown fencing.`

const (
	summaryContentChars = 12000
	summaryMaxTags      = 4
	summaryMaxBullets   = 5
)

// CaseStudyMetadata is the structured profile extracted from one case study.
type CaseStudyMetadata struct {
	Summary             string   `json:"summary"`
	Location            string   `json:"location"`
	Timeframe           string   `json:"timeframe"`
	Demographic         string   `json:"demographic"`
	Scale               string   `json:"scale"`
	Tags                []string `json:"tags"`
	KeyOutcomes         []string `json:"key_outcomes"`
	ImplementationSteps []string `json:"implementation_steps"`
}

// Summarizer builds case study library metadata. Results are cached in Redis
// per document ID; a failed model call degrades to a minimal title-only
// profile so ingestion never blocks on summarization.
type Summarizer struct {
	Provider llm.Provider
	Model    string
	Cache    *redis.Client
	CacheTTL time.Duration
	Logger   *log.Logger
}

func (s *Summarizer) Metadata(ctx context.Context, docID, title, content string) CaseStudyMetadata {
	cacheKey := "coachtool:casestudy:" + docID
	if s.Cache != nil {
		if raw, err := s.Cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var meta CaseStudyMetadata
			if json.Unmarshal(raw, &meta) == nil && meta.Summary != "" {
				return meta
			}
		}
	}

	meta, err := s.generate(ctx, title, content)
	if err != nil {
		s.Logger.Printf("case study summary failed for %q: %v", truncate(title, 50), err)
		return fallbackMetadata(title)
	}

	if s.Cache != nil {
		if raw, err := json.Marshal(meta); err == nil {
			if err := s.Cache.Set(ctx, cacheKey, raw, s.CacheTTL).Err(); err != nil {
				s.Logger.Printf("case study cache write failed for %s: %v", docID, err)
			}
		}
	}
	return meta
}

func (s *Summarizer) generate(ctx context.Context, title, content string) (CaseStudyMetadata, error) {
	if s.Provider == nil {
		return CaseStudyMetadata{}, fmt.Errorf("no provider configured")
	}
	if len(content) > summaryContentChars {
		content = content[:summaryContentChars]
	}
	prompt := fmt.Sprintf("Case study title: %s\n\nFull text:\n%s", title, content)

	resp, err := s.Provider.ChatCompletion(ctx, llm.ChatRequest{
		Model: s.Model,
		Messages: []llm.Message{
			{Role: "system", Content: summarySystem},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
		Temperature:    0.2,
		MaxTokens:      1500,
	})
	if err != nil {
		return CaseStudyMetadata{}, err
	}

	var meta CaseStudyMetadata
	if err := json.Unmarshal([]byte(resp.Message.Content), &meta); err != nil {
		return CaseStudyMetadata{}, fmt.Errorf("parse metadata: %w", err)
	}
	return sanitizeMetadata(meta), nil
}

func sanitizeMetadata(meta CaseStudyMetadata) CaseStudyMetadata {
	if meta.Location == "" {
		meta.Location = "Not specified"
	}
	if meta.Timeframe == "" {
		meta.Timeframe = "Not specified"
	}
	if meta.Demographic == "" {
		meta.Demographic = "Not specified"
	}
	switch meta.Scale {
	case "small", "medium", "large":
	default:
		meta.Scale = "medium"
	}
	if len(meta.Tags) > summaryMaxTags {
		meta.Tags = meta.Tags[:summaryMaxTags]
	}
	if len(meta.KeyOutcomes) > summaryMaxBullets {
		meta.KeyOutcomes = meta.KeyOutcomes[:summaryMaxBullets]
	}
	if len(meta.ImplementationSteps) > summaryMaxBullets {
		meta.ImplementationSteps = meta.ImplementationSteps[:summaryMaxBullets]
	}
	return meta
}

func fallbackMetadata(title string) CaseStudyMetadata {
	return CaseStudyMetadata{
		Summary:             "Case study: " + title,
		Location:            "Not specified",
		Timeframe:           "Not specified",
		Demographic:         "Not specified",
		Scale:               "medium",
		Tags:                []string{},
		KeyOutcomes:         []string{},
		ImplementationSteps: []string{},
	}
}
