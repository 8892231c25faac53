package llm

import (
	"fmt"
	"log/slog"

	"dealdesk/internal/config"
)

// SetupProvider selects the provider for the configured default model.
// With an Anthropic key present, Claude models are served for real;
// otherwise dev/test fall back to the scripted provider so the full
// streaming path works offline. Production without a key is a
// configuration error, not a silent mock.
func SetupProvider(cfg *config.Config, logger *slog.Logger) (Provider, error) {
	if cfg.AnthropicAPIKey != "" {
		provider, err := NewAnthropicProvider(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("setup anthropic provider: %w", err)
		}
		logger.Info("LLM provider initialized", "provider", provider.Name(), "model", cfg.DefaultModel)
		return provider, nil
	}

	if cfg.Environment == "prod" {
		return nil, fmt.Errorf("no LLM provider configured: ANTHROPIC_API_KEY is required in prod")
	}

	logger.Warn("no API key configured, using scripted provider", "environment", cfg.Environment)
	return NewScriptedProvider(), nil
}

// DefaultModelFor resolves the model the chat service should request.
// When the scripted fallback is active, the configured Claude model
// would be rejected, so it maps to the scripted equivalent.
func DefaultModelFor(p Provider, cfg *config.Config) string {
	if p.SupportsModel(cfg.DefaultModel) {
		return cfg.DefaultModel
	}
	if p.Name() == "scripted" {
		return "scripted-fast"
	}
	return cfg.DefaultModel
}
