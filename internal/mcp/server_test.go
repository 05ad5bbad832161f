package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ficherag/internal/assistant"
	"github.com/dshills/ficherag/internal/embedder"
	"github.com/dshills/ficherag/internal/ingest"
	"github.com/dshills/ficherag/internal/retry"
	"github.com/dshills/ficherag/internal/searcher"
	"github.com/dshills/ficherag/internal/storage"
)

const referential = `[05PR08 / 12-2022] PSE① Hémorragie externe
Une hémorragie externe est un épanchement de sang abondant et visible.
Appuyer fortement sur la plaie avec les doigts ou la paume de la main.

[05PR09 / 12-2022] PSE① Garrot
Le garrot est utilisé lorsque la compression directe est inefficace ou impossible.

[05AC01 / 12-2022] PSE① Les hémorragies
Le sang circule dans les vaisseaux sous l'effet des contractions du coeur.
`

// newTestServer wires a server over in-memory SQLite and the local embedder
func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb, err := embedder.NewLocalProvider(embedder.NewCache(100))
	require.NoError(t, err)

	pipeline, err := ingest.NewPipeline(store, emb, ingest.WithPacing(0, 0), ingest.WithRetryPolicy(retry.NoRetry()))
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	srch := searcher.NewSearcher(store, emb)
	asst := assistant.New(srch, nil, nil)

	s, err := NewServer(store, pipeline, srch, asst)
	require.NoError(t, err)
	return s
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Referentiel_PSE1.txt"), []byte(referential), 0o644))
	return dir
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func decode(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
}

func ingestCorpus(t *testing.T, s *Server) map[string]interface{} {
	t.Helper()
	result, err := s.handleIngestDocuments(context.Background(), call(map[string]interface{}{
		"path": writeCorpus(t),
	}))
	require.NoError(t, err)
	return decode(t, result)
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrMissingDependency)

	s := newTestServer(t)
	assert.NotNil(t, s.mcp)
	assert.Equal(t, ingest.DefaultInclude, s.include)
}

func TestHandleIngestDocuments(t *testing.T) {
	s := newTestServer(t)

	out := ingestCorpus(t, s)
	assert.NotEmpty(t, out["run_id"])
	assert.Equal(t, float64(1), out["documents"])
	assert.Equal(t, float64(3), out["fiches"])
	assert.Equal(t, float64(3), out["imported"])
	assert.Equal(t, float64(0), out["errors"])
	assert.False(t, s.lock.Held(), "lock must be released after the run")
}

func TestHandleIngestDocuments_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleIngestDocuments(ctx, call(map[string]interface{}{}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIngestDocuments(ctx, call(map[string]interface{}{"path": "relative/dir"}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIngestDocuments(ctx, call(map[string]interface{}{"path": filepath.Join(t.TempDir(), "absent")}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIngestDocuments(ctx, call(map[string]interface{}{"path": t.TempDir()}))
	requireCode(t, err, ErrorCodeNoDocuments)
}

func TestHandleIngestDocuments_RejectsConcurrentRun(t *testing.T) {
	s := newTestServer(t)
	require.True(t, s.lock.TryAcquire())
	defer s.lock.Release()

	_, err := s.handleIngestDocuments(context.Background(), call(map[string]interface{}{"path": writeCorpus(t)}))
	requireCode(t, err, ErrorCodeIngestInProgress)
}

func TestHandleSearchFiches(t *testing.T) {
	s := newTestServer(t)
	ingestCorpus(t, s)

	result, err := s.handleSearchFiches(context.Background(), call(map[string]interface{}{
		"query": "Que faire devant une hémorragie externe ?",
	}))
	require.NoError(t, err)

	out := decode(t, result)
	fiches, ok := out["fiches"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, fiches)

	top := fiches[0].(map[string]interface{})
	assert.Equal(t, "05PR08", top["reference"])
	assert.Equal(t, "Hémorragie externe", top["title"])
	assert.NotContains(t, top["body"], "[05PR08")
}

func TestHandleSearchFiches_FreshAfterIngest(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	args := map[string]interface{}{"query": "Que faire devant une hémorragie externe ?"}

	result, err := s.handleSearchFiches(ctx, call(args))
	require.NoError(t, err)
	before := decode(t, result)
	assert.Equal(t, float64(0), before["total"])
	assert.NotEmpty(t, before["message"])

	ingestCorpus(t, s)

	result, err = s.handleSearchFiches(ctx, call(args))
	require.NoError(t, err)
	after := decode(t, result)
	assert.Equal(t, false, after["cache_hit"])
	assert.NotEqual(t, float64(0), after["total"])
	assert.NotContains(t, after, "message")

	// A repeated query on an unchanged store is served from the cache
	result, err = s.handleSearchFiches(ctx, call(args))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, result)["cache_hit"])
}

func TestHandleSearchFiches_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleSearchFiches(ctx, call(map[string]interface{}{"query": "  "}))
	requireCode(t, err, ErrorCodeEmptyQuery)

	_, err = s.handleSearchFiches(ctx, call(map[string]interface{}{"query": "garrot", "limit": float64(101)}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleSearchFiches(ctx, mcp.CallToolRequest{})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleGetFiche(t *testing.T) {
	s := newTestServer(t)
	ingestCorpus(t, s)
	ctx := context.Background()

	result, err := s.handleGetFiche(ctx, call(map[string]interface{}{"reference": "05pr09"}))
	require.NoError(t, err)

	fiche := decode(t, result)["fiche"].(map[string]interface{})
	assert.Equal(t, "05PR09", fiche["reference"])
	assert.Equal(t, "Garrot", fiche["title"])
	assert.Equal(t, "procedure", fiche["type"])

	_, err = s.handleGetFiche(ctx, call(map[string]interface{}{"reference": "99PR99"}))
	requireCode(t, err, ErrorCodeFicheNotFound)
}

func TestHandleListChapter(t *testing.T) {
	s := newTestServer(t)
	ingestCorpus(t, s)
	ctx := context.Background()

	result, err := s.handleListChapter(ctx, call(map[string]interface{}{"chapter": "05"}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, "Urgences vitales", out["chapter_name"])
	assert.Equal(t, float64(3), out["count"])

	result, err = s.handleListChapter(ctx, call(map[string]interface{}{"chapter": "05", "type": "knowledge"}))
	require.NoError(t, err)
	out = decode(t, result)
	require.Equal(t, float64(1), out["count"])
	entry := out["fiches"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "05AC01", entry["reference"])
	assert.Equal(t, "PSE1", entry["level"])

	_, err = s.handleListChapter(ctx, call(map[string]interface{}{"chapter": "5"}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleListChapter(ctx, call(map[string]interface{}{"chapter": "05", "type": "quiz"}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleAskQuestion(t *testing.T) {
	s := newTestServer(t)
	ingestCorpus(t, s)
	ctx := context.Background()

	result, err := s.handleAskQuestion(ctx, call(map[string]interface{}{"question": "Que faire devant une hémorragie externe ?"}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, false, out["generated"])
	assert.NotEmpty(t, out["fiches"])

	_, err = s.handleAskQuestion(ctx, call(map[string]interface{}{}))
	requireCode(t, err, ErrorCodeEmptyQuery)
}

func TestHandleGetStatus(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleGetStatus(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, float64(0), out["statistics"].(map[string]interface{})["records"])
	assert.Nil(t, out["last_run"])

	ingestCorpus(t, s)

	result, err = s.handleGetStatus(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	out = decode(t, result)
	stats := out["statistics"].(map[string]interface{})
	assert.Equal(t, float64(3), stats["fiches"])
	assert.Equal(t, true, out["health"].(map[string]interface{})["database_accessible"])
	require.NotNil(t, out["last_run"])
	assert.Equal(t, float64(3), out["last_run"].(map[string]interface{})["imported"])
	assert.Equal(t, false, out["ingest_in_progress"])
}

func TestSearchError(t *testing.T) {
	requireCode(t, searchError(searcher.ErrSearchFailed), ErrorCodeSearchUnavailable)
	requireCode(t, searchError(searcher.ErrEmptyQuery), ErrorCodeEmptyQuery)
	requireCode(t, searchError(errors.New("boom")), ErrorCodeInternalError)
}

func TestGetStringSlice(t *testing.T) {
	args := map[string]interface{}{
		"a": []interface{}{"**/*.txt", 3, ""},
		"b": []string{"x"},
	}
	assert.Equal(t, []string{"**/*.txt"}, getStringSlice(args, "a"))
	assert.Equal(t, []string{"x"}, getStringSlice(args, "b"))
	assert.Nil(t, getStringSlice(args, "c"))
}
