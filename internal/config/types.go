package config

import (
	"time"

	"github.com/dshills/ficherag/internal/embedder"
	"github.com/dshills/ficherag/internal/llm"
	"github.com/dshills/ficherag/internal/retry"
	"github.com/dshills/ficherag/internal/searcher"
)

// Config is the top-level ficherag configuration, corresponding to ficherag.yaml.
type Config struct {
	DBPath    string                 `yaml:"db_path" koanf:"db_path"`
	Log       LogConfig              `yaml:"log" koanf:"log"`
	Embedder  embedder.Config        `yaml:"embedder" koanf:"embedder"`
	LLM       llm.Config             `yaml:"llm" koanf:"llm"`
	Search    searcher.ScoringPolicy `yaml:"search" koanf:"search"`
	Cache     CacheConfig            `yaml:"cache" koanf:"cache"`
	Ingest    IngestConfig           `yaml:"ingest" koanf:"ingest"`
	Assistant AssistantConfig        `yaml:"assistant" koanf:"assistant"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

// CacheConfig sizes the search response cache
type CacheConfig struct {
	Size int           `yaml:"size" koanf:"size"`
	TTL  time.Duration `yaml:"ttl" koanf:"ttl"`
}

// IngestConfig holds ingestion pipeline settings
type IngestConfig struct {
	Include           []string      `yaml:"include" koanf:"include"`
	StructuredMarkers []string      `yaml:"structured_markers" koanf:"structured_markers"`
	ChunkSize         int           `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap      int           `yaml:"chunk_overlap" koanf:"chunk_overlap"`
	PaceDelay         time.Duration `yaml:"pace_delay" koanf:"pace_delay"`
	FailureBackoff    time.Duration `yaml:"failure_backoff" koanf:"failure_backoff"`
	Workers           int           `yaml:"workers" koanf:"workers"`
	MaxInFlight       int           `yaml:"max_in_flight" koanf:"max_in_flight"`
	RequestsPerSecond float64       `yaml:"requests_per_second" koanf:"requests_per_second"`
	Retry             retry.Policy  `yaml:"retry" koanf:"retry"`
}

// AssistantConfig bounds the context handed to the generation model
type AssistantConfig struct {
	ContextTokens int `yaml:"context_tokens" koanf:"context_tokens"`
}
