package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dshills/ficherag/internal/retry"
)

// HuggingFaceProvider implements Embedder against a feature-extraction
// inference endpoint. Such endpoints return either one pooled vector per
// input or one vector per token; the latter are mean-pooled here.
type HuggingFaceProvider struct {
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
	policy     retry.Policy
}

// NewHuggingFaceProvider creates a new feature-extraction embedder
func NewHuggingFaceProvider(apiKey, baseURL, model string, dimension int, cache *Cache, policy retry.Policy) (*HuggingFaceProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvHuggingFaceAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultHuggingFaceURL
	}
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	if dimension <= 0 {
		dimension = HuggingFaceDimension
	}

	return &HuggingFaceProvider{
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache:  cache,
		policy: policy,
	}, nil
}

func (h *HuggingFaceProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	if _, emb := h.cache.lookup(req.Text); emb != nil {
		return emb, nil
	}

	resp, err := h.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (h *HuggingFaceProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = h.model
	}

	vectors, err := retry.Do(ctx, h.policy, func(ctx context.Context) ([][]float32, error) {
		return h.callAPI(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	embeddings := make([]*Embedding, len(vectors))
	for i, v := range vectors {
		hash := ComputeHash(req.Texts[i])
		embeddings[i] = &Embedding{
			Vector:    v,
			Dimension: len(v),
			Provider:  ProviderHuggingFace,
			Model:     model,
			Hash:      hash,
		}
		h.cache.Set(hash, embeddings[i])
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderHuggingFace,
		Model:      model,
	}, nil
}

func (h *HuggingFaceProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	body, err := json.Marshal(map[string]interface{}{
		"inputs": texts,
	})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(apiErr)
		}
		return nil, apiErr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	vectors, err := decodeFeatures(raw, len(texts))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	return vectors, nil
}

// decodeFeatures accepts the three shapes feature-extraction endpoints use:
// a single vector, one vector per input, or one token matrix per input.
func decodeFeatures(raw []byte, inputs int) ([][]float32, error) {
	var perInput [][]float32
	if err := json.Unmarshal(raw, &perInput); err == nil {
		if len(perInput) == inputs {
			for i, v := range perInput {
				if len(v) == 0 {
					return nil, fmt.Errorf("input %d: %w", i, ErrEmptyVector)
				}
			}
			return perInput, nil
		}
		// A single input answered with its token matrix
		if inputs == 1 && len(perInput) > 1 {
			pooled, err := MeanPool(perInput)
			if err != nil {
				return nil, err
			}
			return [][]float32{pooled}, nil
		}
	}

	var perToken [][][]float32
	if err := json.Unmarshal(raw, &perToken); err == nil && len(perToken) == inputs {
		out := make([][]float32, inputs)
		for i, tokens := range perToken {
			pooled, err := MeanPool(tokens)
			if err != nil {
				return nil, fmt.Errorf("input %d: %w", i, err)
			}
			out[i] = pooled
		}
		return out, nil
	}

	if inputs == 1 {
		var single []float32
		if err := json.Unmarshal(raw, &single); err == nil {
			if len(single) == 0 {
				return nil, ErrEmptyVector
			}
			return [][]float32{single}, nil
		}
	}

	return nil, fmt.Errorf("decode response: unexpected shape for %d inputs", inputs)
}

func (h *HuggingFaceProvider) Dimension() int {
	return h.dimension
}

func (h *HuggingFaceProvider) Provider() string {
	return ProviderHuggingFace
}

func (h *HuggingFaceProvider) Model() string {
	return h.model
}

func (h *HuggingFaceProvider) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}
