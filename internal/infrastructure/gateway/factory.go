package gateway

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/shelflens/backend/config"
	"github.com/shelflens/backend/internal/domain"
	"github.com/shelflens/backend/internal/infrastructure/ollama"
	"github.com/shelflens/backend/internal/infrastructure/openai"
)

// Supported providers
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// New builds the inference gateway selected by cfg.Provider
func New(cfg config.GatewayConfig, debug bool) (domain.InferenceGateway, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		client := openai.NewClient(openai.Config{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Mode:              cfg.Mode,
			StrictJSON:        cfg.StrictJSON,
			MaxTokens:         cfg.MaxTokens,
			Timeout:           cfg.Timeout,
			RequestsPerMinute: cfg.RequestsPerMinute,
		})
		client.SetDebug(debug)

		log.Info().
			Str("provider", ProviderOpenAI).
			Str("base_url", cfg.BaseURL).
			Str("model", cfg.Model).
			Str("mode", cfg.Mode).
			Bool("strict_json", cfg.StrictJSON).
			Str("api_key", maskKey(cfg.APIKey)).
			Msg("inference gateway configured")
		return client, nil

	case ProviderOllama:
		client, err := ollama.NewClient(cfg.BaseURL, cfg.Model, cfg.StrictJSON, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("ollama gateway: %w", err)
		}

		log.Info().
			Str("provider", ProviderOllama).
			Str("base_url", cfg.BaseURL).
			Str("model", cfg.Model).
			Bool("strict_json", cfg.StrictJSON).
			Msg("inference gateway configured")
		return client, nil

	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
}

// maskKey keeps only enough of a secret to tell keys apart in logs
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
