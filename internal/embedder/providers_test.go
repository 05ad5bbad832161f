package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ficherag/internal/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func openAIServer(t *testing.T, calls *int32, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"message": "failure", "type": "invalid_request_error"},
			})
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]interface{}, len(req.Input))
		for i := range req.Input {
			// reversed order exercises index handling
			idx := len(req.Input) - 1 - i
			data[i] = map[string]interface{}{
				"object":    "embedding",
				"index":     idx,
				"embedding": []float32{float32(idx), 1, 0},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data":   data,
		})
	}))
}

func TestOpenAIProvider(t *testing.T) {
	t.Run("batch embedding keeps input order", func(t *testing.T) {
		var calls int32
		server := openAIServer(t, &calls, http.StatusOK)
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", server.URL+"/v1", "", NewCache(10), testPolicy())
		require.NoError(t, err)

		resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
			Texts: []string{"hémorragie", "garrot", "brûlure"},
		})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)
		for i, emb := range resp.Embeddings {
			assert.Equal(t, float32(i), emb.Vector[0])
			assert.Equal(t, ProviderOpenAI, emb.Provider)
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("cache avoids second call", func(t *testing.T) {
		var calls int32
		server := openAIServer(t, &calls, http.StatusOK)
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", server.URL+"/v1", "", NewCache(10), testPolicy())
		require.NoError(t, err)

		ctx := context.Background()
		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "malaise"})
		require.NoError(t, err)
		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "malaise"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls int32
		server := openAIServer(t, &calls, http.StatusBadRequest)
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", server.URL+"/v1", "", nil, testPolicy())
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("server error is retried", func(t *testing.T) {
		var calls int32
		server := openAIServer(t, &calls, http.StatusInternalServerError)
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", server.URL+"/v1", "", nil, testPolicy())
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("batch too large", func(t *testing.T) {
		provider, err := NewOpenAIProvider("test-key", "http://unused", "", nil, testPolicy())
		require.NoError(t, err)

		texts := make([]string, MaxBatchSize+1)
		for i := range texts {
			texts[i] = "t"
		}
		_, err = provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts})
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})
}

func TestHuggingFaceProvider(t *testing.T) {
	t.Run("token matrix is mean pooled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/sentence-model", r.URL.Path)
			assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
			// one input, two tokens of dimension 2
			_ = json.NewEncoder(w).Encode([][][]float32{{{1, 3}, {3, 5}}})
		}))
		defer server.Close()

		provider, err := NewHuggingFaceProvider("hf_test", server.URL, "sentence-model", 2, nil, testPolicy())
		require.NoError(t, err)

		emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "arrêt cardiaque"})
		require.NoError(t, err)
		assert.Equal(t, []float32{2, 4}, emb.Vector)
		assert.Equal(t, ProviderHuggingFace, emb.Provider)
	})

	t.Run("pooled vectors per input", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode([][]float32{{1, 0}, {0, 1}})
		}))
		defer server.Close()

		provider, err := NewHuggingFaceProvider("", server.URL, "m", 2, nil, testPolicy())
		require.NoError(t, err)

		resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)
		assert.Equal(t, []float32{0, 1}, resp.Embeddings[1].Vector)
	})

	t.Run("single input token matrix without batch nesting", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode([][]float32{{0, 2}, {2, 0}, {1, 1}})
		}))
		defer server.Close()

		provider, err := NewHuggingFaceProvider("", server.URL, "m", 2, nil, testPolicy())
		require.NoError(t, err)

		emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "a"})
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 1}, emb.Vector)
	})

	t.Run("model loading is retried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode([][]float32{{1, 1}})
		}))
		defer server.Close()

		provider, err := NewHuggingFaceProvider("", server.URL, "m", 2, NewCache(4), testPolicy())
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "a"})
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("unexpected shape fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))
		defer server.Close()

		provider, err := NewHuggingFaceProvider("", server.URL, "m", 2, nil, testPolicy())
		require.NoError(t, err)

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "a"})
		assert.ErrorIs(t, err, ErrProviderFailed)
	})
}

func TestDecodeFeatures(t *testing.T) {
	_, err := decodeFeatures([]byte(`[[]]`), 1)
	assert.ErrorIs(t, err, ErrEmptyVector)

	vecs, err := decodeFeatures([]byte(`[0.5, 0.25]`), 1)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.25}}, vecs)
}

func TestProviderClose(t *testing.T) {
	local, _ := NewLocalProvider(nil)
	hf, _ := NewHuggingFaceProvider("", "", "", 0, nil, testPolicy())
	oa, _ := NewOpenAIProvider("k", "", "", nil, testPolicy())

	for _, e := range []Embedder{local, hf, oa} {
		assert.NoError(t, e.Close())
	}
}
