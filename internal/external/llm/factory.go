package llm

import (
	"context"
	"fmt"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/config"
	"github.com/wonny/scout/backend/pkg/logger"
)

// NewProvider builds the configured vendor provider
// ⭐ SSOT: LLM 벤더 선택은 여기서만
func NewProvider(ctx context.Context, cfg config.LLMConfig, log *logger.Logger) (contracts.ReasoningProvider, error) {
	switch cfg.Provider {
	case "claude":
		return NewClaudeProvider(cfg.APIKey, cfg.Model, "", cfg.MaxTokens, cfg.Temperature, log)
	case "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, "", cfg.MaxTokens, cfg.Temperature, log)
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens, cfg.Temperature, cfg.Timeout, log)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
