package core

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const evidenceTruncationNote = "\n[truncated: evidence budget reached]"

// Counter measures and cuts text in model tokens.
type Counter interface {
	Count(text string) int
	Truncate(text string, tokens int) string
}

// TokenCounter counts tokens the way the completion API bills them.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &TokenCounter{enc: enc}, nil
}

func (c *TokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Truncate cuts text to at most the given number of tokens on a token
// boundary.
func (c *TokenCounter) Truncate(text string, tokens int) string {
	encoded := c.enc.Encode(text, nil, nil)
	if len(encoded) <= tokens {
		return text
	}
	return c.enc.Decode(encoded[:tokens])
}

// evidenceBudget caps the total evidence tokens fed to the model across one
// run. Once exhausted, further evidence content is truncated so tool-heavy
// runs cannot grow the prompt without bound.
type evidenceBudget struct {
	counter   Counter
	remaining int
}

func newEvidenceBudget(counter Counter, limit int) *evidenceBudget {
	if limit <= 0 {
		return &evidenceBudget{}
	}
	return &evidenceBudget{counter: counter, remaining: limit}
}

// clamp charges each item's content against the budget, truncating in place
// once it runs out. A nil counter or non-positive initial limit disables
// clamping.
func (b *evidenceBudget) clamp(items []EvidenceItem) {
	if b == nil || b.counter == nil {
		return
	}
	for i := range items {
		cost := b.counter.Count(items[i].Content)
		if cost <= b.remaining {
			b.remaining -= cost
			continue
		}
		if b.remaining <= 0 {
			items[i].Content = evidenceTruncationNote
			continue
		}
		items[i].Content = b.counter.Truncate(items[i].Content, b.remaining) + evidenceTruncationNote
		b.remaining = 0
	}
}
