package embedder

import (
	"fmt"
	"os"
	"strings"

	"github.com/dshills/ficherag/internal/retry"
)

// Provider names
const (
	ProviderOpenAI      = "openai"
	ProviderHuggingFace = "huggingface"
	ProviderLocal       = "local"

	DefaultOpenAIModel      = "text-embedding-3-small"
	DefaultHuggingFaceModel = "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"
	DefaultHuggingFaceURL   = "https://api-inference.huggingface.co/pipeline/feature-extraction"

	OpenAIDimension      = 1536
	HuggingFaceDimension = 384
	LocalDimension       = 384

	MaxBatchSize = 100

	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvHuggingFaceAPIKey = "HF_API_TOKEN"
)

// Config holds embedder configuration
type Config struct {
	Provider  string       `koanf:"provider" yaml:"provider"`
	Model     string       `koanf:"model" yaml:"model"`
	APIKey    string       `koanf:"api_key" yaml:"api_key,omitempty"`
	BaseURL   string       `koanf:"base_url" yaml:"base_url,omitempty"`
	Dimension int          `koanf:"dimension" yaml:"dimension,omitempty"`
	CacheSize int          `koanf:"cache_size" yaml:"cache_size"`
	Retry     retry.Policy `koanf:"retry" yaml:"retry"`
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	policy := cfg.Retry
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cache, policy)
	case ProviderHuggingFace:
		return NewHuggingFaceProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension, cache, policy)
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider used when none is configured
func DetectProvider() string {
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvHuggingFaceAPIKey) != "" {
		return ProviderHuggingFace
	}
	return ProviderLocal
}
