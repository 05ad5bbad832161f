// Package embedder turns text into vectors for semantic search.
//
// Three providers implement Embedder:
//
//   - openai: the OpenAI embeddings API, or any compatible server via base_url
//   - huggingface: a feature-extraction inference endpoint; per-token outputs
//     are mean-pooled into one vector
//   - local: deterministic hashed bag-of-words vectors, no network needed
//
// Remote calls go through a retry.Policy. Client errors other than 429 are
// not retried. Embeddings are cached in an LRU keyed by the SHA-256 of the
// input text.
//
// # Usage
//
//	e, err := embedder.New(embedder.Config{Provider: "openai", CacheSize: 10000})
//	if err != nil {
//	    return err
//	}
//	defer e.Close()
//
//	emb, err := e.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: question})
//
// When no provider is configured, DetectProvider picks openai if
// OPENAI_API_KEY is set, then huggingface if HF_API_TOKEN is set, then local.
package embedder
