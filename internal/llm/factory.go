package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/dshills/ficherag/internal/retry"
)

// Provider names
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"

	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultOllamaModel = "mistral"
	DefaultOllamaURL   = "http://localhost:11434/v1"

	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// Config holds generation backend configuration
type Config struct {
	Provider          string       `koanf:"provider" yaml:"provider"`
	Model             string       `koanf:"model" yaml:"model"`
	APIKey            string       `koanf:"api_key" yaml:"api_key,omitempty"`
	BaseURL           string       `koanf:"base_url" yaml:"base_url,omitempty"`
	RequestsPerMinute int          `koanf:"requests_per_minute" yaml:"requests_per_minute"`
	MaxTokens         int          `koanf:"max_tokens" yaml:"max_tokens"`
	Temperature       float64      `koanf:"temperature" yaml:"temperature"`
	Retry             retry.Policy `koanf:"retry" yaml:"retry"`
}

// NewProvider creates a provider from configuration. It returns ErrNoProvider
// when generation is disabled or no credentials are available.
func NewProvider(cfg Config) (Provider, error) {
	policy := cfg.Retry
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}

	var provider Provider
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv(EnvOpenAIAPIKey)
		}
		if apiKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: %s environment variable is not set", ErrNoProvider, EnvOpenAIAPIKey)
		}
		model := cfg.Model
		if model == "" {
			model = DefaultOpenAIModel
		}
		provider = NewOpenAIProvider(apiKey, cfg.BaseURL, model, policy)

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = ollamaURL(os.Getenv(EnvOllamaHost))
		}
		model := cfg.Model
		if model == "" {
			model = DefaultOllamaModel
		}
		p := NewOpenAIProvider("ollama", baseURL, model, policy)
		p.name = ProviderOllama
		provider = p

	case ProviderNone:
		return nil, ErrNoProvider

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider)
	}

	return NewRateLimitedProvider(provider, cfg.RequestsPerMinute), nil
}

// ollamaURL turns an OLLAMA_HOST value into the OpenAI-compatible endpoint
func ollamaURL(host string) string {
	if host == "" {
		return DefaultOllamaURL
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return strings.TrimRight(host, "/") + "/v1"
}
