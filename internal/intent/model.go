// Package intent turns a natural-language request into TokenMetrics endpoint parameters using a
// chat model.
package intent

import (
	"context"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultOllamaModel = "llama3.2"
	DefaultOllamaURL   = "http://localhost:11434"
)

// Config selects and authenticates the chat model.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewChatModel builds the chat model for cfg.
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}
	switch provider {
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, clierr.New(clierr.CodeAuth, "LLM API key is required for provider openai (set TM_LLM_API_KEY)")
		}
		modelName := cfg.Model
		if modelName == "" {
			modelName = DefaultOpenAIModel
		}
		chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:   modelName,
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		})
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "create openai chat model", err)
		}
		return chat, nil
	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		modelName := cfg.Model
		if modelName == "" {
			modelName = DefaultOllamaModel
		}
		chat, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   modelName,
		})
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "create ollama chat model", err)
		}
		return chat, nil
	default:
		return nil, clierr.New(clierr.CodeUsage, "unsupported LLM provider: "+cfg.Provider+" (supported: openai, ollama)")
	}
}
