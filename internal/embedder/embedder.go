package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrEmptyVector       = errors.New("provider returned an empty vector")
)

// Embedding is one vector along with the provider and model that produced it.
// Hash is the content hash of the embedded text.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string
}

func (e *Embedding) clone() *Embedding {
	c := *e
	c.Vector = append([]float32(nil), e.Vector...)
	return &c
}

type EmbeddingRequest struct {
	Text  string
	Model string // empty selects the provider default
}

type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder is implemented by every vector provider.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	// GenerateBatch returns one embedding per input text, in input order.
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

const defaultCacheEntries = 10000

// Cache keeps recently computed embeddings keyed by content hash. A nil
// *Cache is valid and never hits.
type Cache struct {
	entries *lru.Cache[string, *Embedding]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// CacheStats is a point-in-time view of cache usage.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	entries, err := lru.New[string, *Embedding](maxEntries)
	if err != nil {
		panic(fmt.Sprintf("embedder: lru with %d entries: %v", maxEntries, err))
	}
	return &Cache{entries: entries}
}

// Get returns a copy of the cached embedding, so callers may mutate it freely.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	if c == nil {
		return nil, false
	}
	emb, ok := c.entries.Get(hash)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return emb.clone(), true
}

func (c *Cache) Set(hash string, emb *Embedding) {
	if c == nil || emb == nil {
		return
	}
	c.entries.Add(hash, emb.clone())
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{Entries: c.entries.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// lookup hashes text and probes the cache in one step.
func (c *Cache) lookup(text string) (string, *Embedding) {
	hash := ComputeHash(text)
	emb, _ := c.Get(hash)
	return hash, emb
}

// ComputeHash returns the hex SHA-256 of text.
func ComputeHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ValidateRequest rejects blank texts. Whitespace-only chunks carry no
// meaning and some providers reject them outright.
func ValidateRequest(req EmbeddingRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyText
	}
	return nil
}

func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	switch n := len(req.Texts); {
	case n == 0:
		return fmt.Errorf("%w: empty batch", ErrInvalidInput)
	case n > MaxBatchSize:
		return fmt.Errorf("%w: %d texts, max %d", ErrBatchTooLarge, n, MaxBatchSize)
	}
	for i, text := range req.Texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("text %d: %w", i, ErrEmptyText)
		}
	}
	return nil
}

// MeanPool averages per-token vectors into one sentence vector.
func MeanPool(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrEmptyVector
	}
	dim := len(vectors[0])
	pooled := make([]float32, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: token %d has dimension %d, expected %d", ErrInvalidInput, i, len(v), dim)
		}
		for j, x := range v {
			pooled[j] += x
		}
	}
	scale := 1 / float32(len(vectors))
	for j := range pooled {
		pooled[j] *= scale
	}
	return pooled, nil
}

// NormalizeVector scales v to unit length. The zero vector is returned as is.
func NormalizeVector(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
