package llm

import (
	"fmt"

	"github.com/civicworks/coachtool/config"
)

// NewProvider creates a provider from configuration. Only OpenAI-compatible
// backends are supported; BaseURL can point at any compatible endpoint.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	for name, provider := range cfg.Providers {
		switch provider.Type {
		case "openai", "":
			return NewOpenAIProvider(provider)
		default:
			return nil, fmt.Errorf("unsupported LLM provider type %q (provider %q)", provider.Type, name)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}
