package llm

import (
	"context"
	"fmt"
)

// Model identifiers accepted by NewProvider.
const (
	ModelGeminiPro = "Gemini-Pro"
	ModelCohere    = "Cohere"
	ModelChatGPT   = "ChatGPT"
	ModelDeepSeek  = "DeepSeek"
)

// NewProvider builds the provider named by id. model and baseURL override the
// per-provider defaults when non-empty.
func NewProvider(ctx context.Context, id, apiKey, model, baseURL string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", id)
	}
	pick := func(def string) string {
		if model != "" {
			return model
		}
		return def
	}

	switch id {
	case ModelGeminiPro:
		return NewGeminiProvider(ctx, apiKey, pick(GeminiModel), baseURL)
	case ModelCohere:
		return NewCohereProvider(apiKey, pick(CohereModel), baseURL), nil
	case ModelChatGPT:
		return NewOpenAIProvider(ModelChatGPT, apiKey, pick(ChatGPTModel), baseURL), nil
	case ModelDeepSeek:
		if baseURL == "" {
			baseURL = OpenRouterBaseURL
		}
		return NewOpenAIProvider(ModelDeepSeek, apiKey, pick(DeepSeekModel), baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported base model: %s", id)
	}
}
