// Package config loads ficherag settings from a YAML file with environment
// overrides on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/dshills/ficherag/internal/embedder"
	"github.com/dshills/ficherag/internal/llm"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (FICHERAG_*). Nested keys use a double
// underscore: FICHERAG_LLM__PROVIDER=none sets llm.provider.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// envKey maps FICHERAG_INGEST__PACE_DELAY to ingest.pace_delay
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validEmbedders = map[string]bool{
	"":                           true,
	embedder.ProviderOpenAI:      true,
	embedder.ProviderHuggingFace: true,
	embedder.ProviderLocal:       true,
}

var validGenerators = map[string]bool{
	"":                 true,
	llm.ProviderOpenAI: true,
	llm.ProviderOllama: true,
	llm.ProviderNone:   true,
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validFormats = map[string]bool{"text": true, "json": true}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is required", ErrInvalidConfig)
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("%w: invalid log.level %q: must be one of debug, info, warn, error", ErrInvalidConfig, c.Log.Level)
	}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		return fmt.Errorf("%w: invalid log.format %q: must be text or json", ErrInvalidConfig, c.Log.Format)
	}

	if !validEmbedders[strings.ToLower(c.Embedder.Provider)] {
		return fmt.Errorf("%w: invalid embedder.provider %q: must be one of openai, huggingface, local", ErrInvalidConfig, c.Embedder.Provider)
	}
	if err := c.Embedder.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: embedder.retry: %v", ErrInvalidConfig, err)
	}

	if !validGenerators[strings.ToLower(c.LLM.Provider)] {
		return fmt.Errorf("%w: invalid llm.provider %q: must be one of openai, ollama, none", ErrInvalidConfig, c.LLM.Provider)
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: llm.requests_per_minute must be non-negative", ErrInvalidConfig)
	}
	if err := c.LLM.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: llm.retry: %v", ErrInvalidConfig, err)
	}

	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("%w: search: %v", ErrInvalidConfig, err)
	}
	if c.Cache.Size < 0 || c.Cache.TTL < 0 {
		return fmt.Errorf("%w: cache size and ttl must be non-negative", ErrInvalidConfig)
	}

	in := c.Ingest
	if in.ChunkSize <= 0 || in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize {
		return fmt.Errorf("%w: ingest.chunk_overlap must be in [0, chunk_size)", ErrInvalidConfig)
	}
	if in.PaceDelay < 0 || in.FailureBackoff < 0 {
		return fmt.Errorf("%w: ingest delays must be non-negative", ErrInvalidConfig)
	}
	if in.Workers < 0 || in.MaxInFlight < 0 || in.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: ingest concurrency settings must be non-negative", ErrInvalidConfig)
	}
	if err := in.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: ingest.retry: %v", ErrInvalidConfig, err)
	}

	return nil
}

// ResolveDBPath expands a leading ~ in DBPath to the user's home directory
func (c *Config) ResolveDBPath() (string, error) {
	return ExpandPath(c.DBPath)
}

// ExpandPath expands a leading ~ to the user's home directory
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
