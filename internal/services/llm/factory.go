package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sermo/internal/common"
	"github.com/ternarybob/sermo/internal/interfaces"
	"github.com/ternarybob/sermo/internal/services/llm/offline"
)

// NewLLMService creates the appropriate LLM service implementation based
// on the configured provider.
func NewLLMService(cfg *common.Config, keyStore interfaces.KeyValueStore, logger arbor.ILogger) (interfaces.LLMService, error) {
	logger.Info().Str("provider", cfg.LLM.Provider).Msg("Initializing LLM service")

	switch cfg.LLM.Provider {
	case common.LLMProviderOffline:
		return createOfflineService(cfg, logger)

	case common.LLMProviderClaude:
		return NewClaudeService(&cfg.LLM.Claude, cfg.LLM.Timeout, keyStore, logger)

	case common.LLMProviderGemini:
		return NewGeminiService(&cfg.LLM.Gemini, cfg.LLM.Timeout, keyStore, logger)

	default:
		return nil, fmt.Errorf("invalid LLM provider '%s': must be 'offline', 'claude', or 'gemini'", cfg.LLM.Provider)
	}
}

// createOfflineService creates and validates the offline LLM service
func createOfflineService(cfg *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	if err := validateOfflineConfig(&cfg.LLM); err != nil {
		return nil, fmt.Errorf("invalid offline configuration: %w", err)
	}

	logger.Debug().
		Str("model_dir", cfg.LLM.ModelDir).
		Str("chat_model", cfg.LLM.ChatModel).
		Int("context_size", cfg.LLM.ContextSize).
		Int("thread_count", cfg.LLM.ThreadCount).
		Msg("Creating offline LLM service")

	service, err := offline.NewOfflineLLMService(
		cfg.LLM.LlamaDir,
		cfg.LLM.ModelDir,
		cfg.LLM.ChatModel,
		cfg.LLM.ContextSize,
		cfg.LLM.ThreadCount,
		cfg.LLM.GPULayers,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create offline LLM service: %w", err)
	}

	return service, nil
}

// validateOfflineConfig validates the offline LLM configuration
func validateOfflineConfig(cfg *common.LLMConfig) error {
	if cfg.ModelDir == "" {
		return fmt.Errorf("ModelDir is required for offline provider")
	}

	if cfg.ChatModel == "" {
		return fmt.Errorf("ChatModel is required for offline provider")
	}

	if cfg.ContextSize <= 0 {
		return fmt.Errorf("ContextSize must be greater than 0, got %d", cfg.ContextSize)
	}

	if cfg.ThreadCount <= 0 {
		return fmt.Errorf("ThreadCount must be greater than 0, got %d", cfg.ThreadCount)
	}

	return nil
}
