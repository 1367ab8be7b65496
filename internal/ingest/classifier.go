package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicworks/coachtool/internal/kb"
	"github.com/civicworks/coachtool/internal/llm"
)

const classificationSystem = `You are a document classifier. Given a document's name, source label, and a content excerpt, classify it into exactly one category.

Valid categories: case_study, transcript, blog_post, journal_article, report, guide, policy_brief, lecture, tool_or_resource, other

Respond with ONLY the category label, nothing else.`

const classificationExcerptChars = 1500

// Classifier assigns content types to documents. LLM classification is
// cached in Redis per document ID; the rule table is the fallback for both
// a missing provider and a bad LLM answer.
type Classifier struct {
	Provider llm.Provider
	Model    string
	Cache    *redis.Client
	CacheTTL time.Duration
	Logger   *log.Logger
}

func (c *Classifier) ContentType(ctx context.Context, docID, source, name, content string) string {
	if c.Provider == nil {
		return ClassifyContentType(source, name)
	}

	cacheKey := "coachtool:classify:" + docID
	if c.Cache != nil {
		if cached, err := c.Cache.Get(ctx, cacheKey).Result(); err == nil && kb.IsValidContentType(cached) {
			return cached
		}
	}

	excerpt := content
	if len(excerpt) > classificationExcerptChars {
		excerpt = excerpt[:classificationExcerptChars]
	}
	prompt := fmt.Sprintf("Document name: %s\nSource: %s\n\nContent excerpt:\n%s", name, source, excerpt)

	label := ""
	resp, err := c.Provider.ChatCompletion(ctx, llm.ChatRequest{
		Model: c.Model,
		Messages: []llm.Message{
			{Role: "system", Content: classificationSystem},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   20,
	})
	if err != nil {
		c.Logger.Printf("classification failed for %q: %v", truncate(name, 50), err)
	} else {
		label = strings.ToLower(strings.Trim(strings.TrimSpace(resp.Message.Content), `"'`))
	}
	if !kb.IsValidContentType(label) {
		label = ClassifyContentType(source, name)
	}

	if c.Cache != nil {
		if err := c.Cache.Set(ctx, cacheKey, label, c.CacheTTL).Err(); err != nil {
			c.Logger.Printf("classification cache write failed for %s: %v", docID, err)
		}
	}
	return label
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
