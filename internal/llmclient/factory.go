package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// NewClient is a factory that creates a Client for the configured provider.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s, %s]",
			cfg.Provider, config.ProviderOllama, config.ProviderGemini)
	}
}
