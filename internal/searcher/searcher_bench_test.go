package searcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/dshills/ficherag/internal/embedder"
	"github.com/dshills/ficherag/internal/storage"
	"github.com/dshills/ficherag/pkg/types"
)

// setupSearchBenchmark fills an in-memory store with synthetic fiches
func setupSearchBenchmark(b *testing.B, count int) (*storage.SQLiteStorage, *Searcher) {
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		b.Fatal(err)
	}

	emb, err := embedder.NewLocalProvider(embedder.NewCache(1000))
	if err != nil {
		b.Fatal(err)
	}

	topics := []string{"Hémorragie externe", "Brûlure thermique", "Arrêt cardiaque", "Obstruction des voies aériennes", "Malaise"}
	ctx := context.Background()
	for i := 0; i < count; i++ {
		topic := topics[i%len(topics)]
		content := fmt.Sprintf("[%02dPR%02d / 12-2022] PSE① %s\n\nConduite à tenir numéro %d face à la victime.", i%11+1, i, topic, i)
		vec, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: content})
		if err != nil {
			b.Fatal(err)
		}
		_, err = store.InsertRecord(ctx, &types.Record{
			Content:   content,
			Source:    "Referentiel_PSE1.pdf",
			Embedding: vec.Vector,
			Reference: fmt.Sprintf("%02dPR%02d", i%11+1, i),
		})
		if err != nil {
			b.Fatal(err)
		}
	}

	return store, NewSearcher(store, emb)
}

// BenchmarkHybridSearch benchmarks both passes, merge and gating over SQLite
func BenchmarkHybridSearch(b *testing.B) {
	store, srch := setupSearchBenchmark(b, 500)
	defer store.Close()

	req := SearchRequest{
		TechnicalQuery: "hémorragie externe compression garrot",
		OriginalQuery:  "Que faire devant une hémorragie externe ?",
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := srch.Search(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMerge benchmarks merge and dedup of two full passes
func BenchmarkMerge(b *testing.B) {
	lexical := make([]types.SearchResult, 10)
	vector := make([]types.SearchResult, 10)
	for i := range lexical {
		lexical[i] = types.SearchResult{ID: int64(i), Similarity: 0.85}
		vector[i] = types.SearchResult{ID: int64(i + 5), Similarity: float64(10-i) / 10}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = Merge(lexical, vector)
	}
}

// BenchmarkKeywords benchmarks keyword extraction
func BenchmarkKeywords(b *testing.B) {
	p := DefaultScoringPolicy()
	query := "Comment poser un garrot sur une hémorragie externe du membre inférieur ?"

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = p.Keywords(query)
	}
}

// BenchmarkQueryHashing benchmarks query hash computation
func BenchmarkQueryHashing(b *testing.B) {
	req := SearchRequest{
		TechnicalQuery: "hémorragie externe compression garrot",
		OriginalQuery:  "Que faire devant une hémorragie externe ?",
		Category:       "PSE",
		Limit:          6,
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = computeQueryHash(req)
	}
}

// BenchmarkConcurrentSearch benchmarks concurrent search operations
func BenchmarkConcurrentSearch(b *testing.B) {
	store, srch := setupSearchBenchmark(b, 200)
	defer store.Close()

	req := SearchRequest{OriginalQuery: "brûlure thermique", UseCache: true}

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := srch.Search(context.Background(), req); err != nil {
				b.Fatal(err)
			}
		}
	})
}
