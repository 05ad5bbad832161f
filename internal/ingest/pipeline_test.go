package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ficherag/internal/embedder"
	"github.com/dshills/ficherag/internal/retry"
	"github.com/dshills/ficherag/internal/storage"
	"github.com/dshills/ficherag/pkg/types"
)

const twoFiches = `[05PR08 / 12-2022] PSE① Hémorragie externe
Une hémorragie externe est un épanchement de sang abondant et visible.
Appuyer fortement sur la plaie avec les doigts ou la paume de la main.

[05PR09 / 12-2022] PSE① Garrot
Le garrot est utilisé lorsque la compression directe est inefficace ou impossible.
`

var plainText = strings.Repeat("La victime est allongée sur le dos et surveillée en permanence. ", 60)

// mockEmbedder implements embedder.Embedder for testing
type mockEmbedder struct {
	failOn    func(text string) bool
	callCount int
	mu        sync.Mutex
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	if m.failOn != nil && m.failOn(req.Text) {
		return nil, errors.New("embedding service unavailable")
	}
	return &embedder.Embedding{
		Vector:    []float32{0.5, 0.5, 0.5},
		Dimension: 3,
		Provider:  "mock",
		Model:     "test-v1",
	}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	return nil, errors.New("not used")
}

func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "test-v1" }
func (m *mockEmbedder) Close() error     { return nil }

func (m *mockEmbedder) getCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// setupTestStorage creates an in-memory SQLite database for testing
func setupTestStorage(t testing.TB) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err, "Failed to create test storage")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestPipeline(t *testing.T, store storage.Storage, emb embedder.Embedder, opts ...Option) *Pipeline {
	t.Helper()
	base := []Option{WithPacing(0, 0), WithRetryPolicy(retry.NoRetry())}
	p, err := NewPipeline(store, emb, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestNewPipeline(t *testing.T) {
	store := setupTestStorage(t)

	_, err := NewPipeline(nil, &mockEmbedder{})
	assert.ErrorIs(t, err, ErrStorageRequired)

	_, err = NewPipeline(store, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewPipeline(store, &mockEmbedder{}, WithPacing(-time.Second, 0))
	assert.Error(t, err)

	p, err := NewPipeline(store, &mockEmbedder{})
	require.NoError(t, err)
	defer p.Release()
	assert.Equal(t, DefaultPaceDelay, p.paceDelay)
	assert.Equal(t, DefaultFailureBackoff, p.failureBackoff)
	assert.Nil(t, p.pool)
}

func TestIngest_StructuredDocument(t *testing.T) {
	store := setupTestStorage(t)
	p := newTestPipeline(t, store, &mockEmbedder{})
	ctx := context.Background()

	report, err := p.Ingest(ctx, []SourceDocument{{Name: "Referentiel_PSE1.txt", Text: twoFiches}}, Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 2, report.Fiches)
	assert.Equal(t, 0, report.Chunks)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 0, report.Errors)

	rec, err := store.GetByReference(ctx, "05PR09")
	require.NoError(t, err)
	assert.Equal(t, "05", rec.Chapter)
	assert.Equal(t, types.FicheProcedure, rec.FicheType)
	assert.Equal(t, types.Level1, rec.Level)
	assert.Equal(t, "12-2022", rec.UpdateDate)
	assert.Equal(t, types.CategoryPSE, rec.Category)
	assert.True(t, strings.HasPrefix(rec.Content, "[05PR09 / 12-2022]"))

	status, err := store.GetStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, report.RunID, status.LastRun.RunID)
	assert.Equal(t, 2, status.LastRun.Imported)
	assert.False(t, status.LastRun.FinishedAt.IsZero())
}

func TestIngest_UnstructuredFallsBackToChunks(t *testing.T) {
	store := setupTestStorage(t)
	p := newTestPipeline(t, store, &mockEmbedder{})

	report, err := p.Ingest(context.Background(), []SourceDocument{
		{Name: "Referentiel_PSC1.txt", Text: plainText},
		// Structured name but no header: chunked as well
		{Name: "PSE_annexe.txt", Text: plainText},
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Fiches)
	assert.Greater(t, report.Chunks, 2)
	assert.Equal(t, report.Chunks, report.Imported)
}

func TestIngest_UnstructuredNameIgnoresHeaders(t *testing.T) {
	store := setupTestStorage(t)
	p := newTestPipeline(t, store, &mockEmbedder{})

	report, err := p.Ingest(context.Background(), []SourceDocument{
		{Name: "notes_SST.txt", Text: twoFiches + plainText},
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Fiches)
	assert.Greater(t, report.Chunks, 0)
}

func TestIngest_CategoryFilter(t *testing.T) {
	store := setupTestStorage(t)
	emb := &mockEmbedder{}
	p := newTestPipeline(t, store, emb)

	docs := []SourceDocument{
		{Name: "Referentiel_PSE1.txt", Text: twoFiches},
		{Name: "Referentiel_PSC1.txt", Text: plainText},
		{Name: "Guide_SST.txt", Text: plainText},
	}
	report, err := p.Ingest(context.Background(), docs, Options{CategoryFilter: "psc"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 0, report.Fiches)
	assert.Equal(t, report.Chunks, emb.getCallCount())
}

func TestIngest_ItemFailureContinues(t *testing.T) {
	store := setupTestStorage(t)
	emb := &mockEmbedder{failOn: func(text string) bool { return strings.Contains(text, "05PR08") }}
	p := newTestPipeline(t, store, emb)
	ctx := context.Background()

	report, err := p.Ingest(ctx, []SourceDocument{{Name: "PSE1.txt", Text: twoFiches}}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Fiches)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.Errors)
	require.Len(t, report.ErrorMessages, 1)
	assert.Contains(t, report.ErrorMessages[0], "05PR08")

	_, err = store.GetByReference(ctx, "05PR08")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetByReference(ctx, "05PR09")
	assert.NoError(t, err)
}

func TestIngest_FailureBackoff(t *testing.T) {
	store := setupTestStorage(t)
	emb := &mockEmbedder{failOn: func(string) bool { return true }}
	p := newTestPipeline(t, store, emb, WithPacing(0, 15*time.Millisecond))

	start := time.Now()
	report, err := p.Ingest(context.Background(), []SourceDocument{{Name: "PSE1.txt", Text: twoFiches}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Errors)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestIngest_PaceDelay(t *testing.T) {
	store := setupTestStorage(t)
	p := newTestPipeline(t, store, &mockEmbedder{}, WithPacing(15*time.Millisecond, 0))

	report, err := p.Ingest(context.Background(), []SourceDocument{{Name: "PSE1.txt", Text: twoFiches}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.GreaterOrEqual(t, report.Duration, 30*time.Millisecond)
}

func TestIngest_ExtractsFromPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Referentiel_PSE1.txt"), []byte(twoFiches), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.pdf"), []byte("%PDF"), 0o644))

	store := setupTestStorage(t)
	p := newTestPipeline(t, store, &mockEmbedder{})

	docs := DocumentsFromPaths([]string{
		filepath.Join(dir, "Referentiel_PSE1.txt"),
		filepath.Join(dir, "scan.pdf"),
	})
	report, err := p.Ingest(context.Background(), docs, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 1, report.Errors)
	assert.Contains(t, report.ErrorMessages[0], "scan.pdf")
}

func TestIngest_Parallel(t *testing.T) {
	store := setupTestStorage(t)
	p := newTestPipeline(t, store, &mockEmbedder{}, WithWorkers(4, 2), WithRateLimit(1000))
	require.NotNil(t, p.pool)
	require.NotNil(t, p.gate)

	docs := make([]SourceDocument, 0, 8)
	for i := 0; i < 8; i++ {
		docs = append(docs, SourceDocument{Name: "PSE1.txt", Text: twoFiches})
	}

	var mu sync.Mutex
	var events []Event
	report, err := p.Ingest(context.Background(), docs, Options{
		Progress: func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 16, report.Fiches)
	assert.Equal(t, 16, report.Imported)
	assert.Equal(t, 0, report.Errors)

	require.Len(t, events, 8)
	for i, e := range events {
		assert.Equal(t, i+1, e.Done)
		assert.Equal(t, 8, e.Total)
		assert.Equal(t, report.RunID, e.RunID)
	}

	status, err := store.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, status.Fiches)
}

func TestIngest_SubmitFailureStillReportsProgress(t *testing.T) {
	store := setupTestStorage(t)
	p := newTestPipeline(t, store, &mockEmbedder{}, WithWorkers(2, 2))
	require.NotNil(t, p.pool)
	// A closed pool rejects every task
	p.pool.Release()

	var mu sync.Mutex
	var events []Event
	report, err := p.Ingest(context.Background(), []SourceDocument{
		{Name: "PSE1.txt", Text: twoFiches},
		{Name: "PSE2.txt", Text: twoFiches},
	}, Options{Progress: func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Imported)
	assert.Equal(t, 2, report.Errors)
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[1].Done)
	assert.Equal(t, 2, events[1].Total)
	assert.Equal(t, 1, events[1].Errors)
}

func TestIngest_ProgressSequential(t *testing.T) {
	store := setupTestStorage(t)
	p := newTestPipeline(t, store, &mockEmbedder{})

	var events []Event
	_, err := p.Ingest(context.Background(), []SourceDocument{
		{Name: "PSE1.txt", Text: twoFiches},
		{Name: "PSC1.txt", Text: plainText},
	}, Options{Progress: func(e Event) { events = append(events, e) }})
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "PSE1.txt", events[0].Document)
	assert.Equal(t, 2, events[0].Items)
	assert.Equal(t, 2, events[0].Imported)
	assert.Equal(t, "PSC1.txt", events[1].Document)
	assert.True(t, events[1].Extracted)
}

func TestIngest_ContextCancellation(t *testing.T) {
	store := setupTestStorage(t)
	p := newTestPipeline(t, store, &mockEmbedder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Ingest(ctx, []SourceDocument{{Name: "PSE1.txt", Text: twoFiches}}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Imported)
}

func TestIngest_EmptyBatch(t *testing.T) {
	store := setupTestStorage(t)
	p := newTestPipeline(t, store, &mockEmbedder{})

	report, err := p.Ingest(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Documents)
	assert.Empty(t, report.ErrorMessages)
}

func TestIndexLock(t *testing.T) {
	var lock IndexLock

	assert.False(t, lock.Held())
	assert.True(t, lock.TryAcquire())
	assert.True(t, lock.Held())
	assert.False(t, lock.TryAcquire())

	lock.Release()
	assert.False(t, lock.Held())
	assert.True(t, lock.TryAcquire())
	lock.Release()
}
