package config

import (
	"github.com/dshills/ficherag/internal/assistant"
	"github.com/dshills/ficherag/internal/chunker"
	"github.com/dshills/ficherag/internal/embedder"
	"github.com/dshills/ficherag/internal/ingest"
	"github.com/dshills/ficherag/internal/llm"
	"github.com/dshills/ficherag/internal/retry"
	"github.com/dshills/ficherag/internal/searcher"
)

const (
	// DefaultConfigFile is looked up in the working directory
	DefaultConfigFile = "ficherag.yaml"
	// DefaultDBPath is the default database location
	DefaultDBPath = "~/.ficherag/ficherag.db"
	// EnvPrefix prefixes environment overrides
	EnvPrefix = "FICHERAG_"
)

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DBPath: DefaultDBPath,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Embedder: embedder.Config{
			CacheSize: 10000,
			Retry:     retry.DefaultPolicy(),
		},
		LLM: llm.Config{
			RequestsPerMinute: 60,
			MaxTokens:         llm.DefaultMaxTokens,
			Temperature:       0.2,
			Retry:             retry.DefaultPolicy(),
		},
		Search: searcher.DefaultScoringPolicy(),
		Cache: CacheConfig{
			Size: searcher.DefaultCacheSize,
			TTL:  searcher.DefaultCacheTTL,
		},
		Ingest: IngestConfig{
			Include:           append([]string(nil), ingest.DefaultInclude...),
			StructuredMarkers: append([]string(nil), ingest.DefaultStructuredMarkers...),
			ChunkSize:         chunker.DefaultSize,
			ChunkOverlap:      chunker.DefaultOverlap,
			PaceDelay:         ingest.DefaultPaceDelay,
			FailureBackoff:    ingest.DefaultFailureBackoff,
			Workers:           1,
			Retry:             retry.DefaultPolicy(),
		},
		Assistant: AssistantConfig{
			ContextTokens: assistant.DefaultContextTokens,
		},
	}
}
