package embedder

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/dshills/ficherag/internal/textnorm"
)

const localModel = "local-hashed-bow"

// LocalProvider embeds text offline as a signed hashed bag of normalized
// words. Texts sharing vocabulary get a positive cosine similarity.
type LocalProvider struct {
	dimension int
	cache     *Cache
}

func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{dimension: LocalDimension, cache: cache}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, cached := l.cache.lookup(req.Text)
	if cached != nil {
		return cached, nil
	}

	emb := &Embedding{
		Vector:    NormalizeVector(l.project(textnorm.Words(req.Text))),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     localModel,
		Hash:      hash,
	}
	l.cache.Set(hash, emb)
	return emb, nil
}

// project folds every word into one signed bucket. The low hash bit picks
// the sign so that collisions tend to cancel out.
func (l *LocalProvider) project(words []string) []float32 {
	vec := make([]float32, l.dimension)
	h := fnv.New32a()
	for _, w := range words {
		h.Reset()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		delta := float32(1)
		if sum&1 == 1 {
			delta = -1
		}
		vec[int(sum>>1)%l.dimension] += delta
	}
	return vec
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	out := &BatchEmbeddingResponse{
		Embeddings: make([]*Embedding, 0, len(req.Texts)),
		Provider:   ProviderLocal,
		Model:      localModel,
	}
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		out.Embeddings = append(out.Embeddings, emb)
	}
	return out, nil
}

func (l *LocalProvider) Dimension() int   { return l.dimension }
func (l *LocalProvider) Provider() string { return ProviderLocal }
func (l *LocalProvider) Model() string    { return localModel }
func (l *LocalProvider) Close() error     { return nil }
