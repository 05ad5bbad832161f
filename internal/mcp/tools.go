package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/ficherag/internal/formatter"
	"github.com/dshills/ficherag/internal/ingest"
	"github.com/dshills/ficherag/internal/parser"
	"github.com/dshills/ficherag/internal/searcher"
	"github.com/dshills/ficherag/internal/storage"
	"github.com/dshills/ficherag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeNoDocuments       = -32001 // Path holds no ingestible document
	ErrorCodeIngestInProgress  = -32002 // Another ingestion run is already running
	ErrorCodeFicheNotFound     = -32003 // No fiche with this reference
	ErrorCodeEmptyQuery        = -32004 // Query parameter is empty
	ErrorCodeSearchUnavailable = -32005 // Every retrieval pass failed
)

// maxReportedErrors bounds the error messages echoed back by ingest_documents
const maxReportedErrors = 5

// handleIngestDocuments handles the ingest_documents tool invocation
func (s *Server) handleIngestDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	info, err := validatePath(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	paths := []string{path}
	if info.IsDir() {
		include := getStringSlice(args, "include")
		if len(include) == 0 {
			include = s.include
		}
		paths, err = ingest.Discover(path, include)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "document discovery failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	if len(paths) == 0 {
		return nil, newMCPError(ErrorCodeNoDocuments, "no document matched", map[string]interface{}{
			"path": path,
		})
	}

	if !s.lock.TryAcquire() {
		return nil, newMCPError(ErrorCodeIngestInProgress, "an ingestion run is already in progress", nil)
	}
	defer s.lock.Release()

	report, err := s.pipeline.Ingest(ctx, ingest.DocumentsFromPaths(paths), ingest.Options{
		CategoryFilter: getStringDefault(args, "category_filter", ""),
	})
	// Even a failed run may have written records, so cached answers are stale
	s.searcher.InvalidateCache()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "ingestion failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"run_id":      report.RunID,
		"documents":   report.Documents,
		"fiches":      report.Fiches,
		"chunks":      report.Chunks,
		"imported":    report.Imported,
		"errors":      report.Errors,
		"duration_ms": report.Duration.Milliseconds(),
	}
	if n := len(report.ErrorMessages); n > 0 {
		if n > maxReportedErrors {
			response["error_messages"] = report.ErrorMessages[:maxReportedErrors]
		} else {
			response["error_messages"] = report.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchFiches handles the search_fiches tool invocation
func (s *Server) handleSearchFiches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultScoringPolicy().TopK)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		TechnicalQuery: getStringDefault(args, "technical_query", query),
		OriginalQuery:  query,
		Category:       getStringDefault(args, "category", ""),
		Limit:          limit,
		UseCache:       true,
	})
	if err != nil {
		return nil, searchError(err)
	}

	views := formatter.Format(resp.Results)
	response := map[string]interface{}{
		"query":       query,
		"total":       len(views),
		"fiches":      views,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	if resp.Empty {
		response["message"] = resp.Message
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetFiche handles the get_fiche tool invocation
func (s *Server) handleGetFiche(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	reference := strings.ToUpper(strings.TrimSpace(getStringDefault(args, "reference", "")))
	if reference == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "reference parameter is required", map[string]interface{}{
			"param":  "reference",
			"reason": "missing or empty",
		})
	}

	rec, err := s.storage.GetByReference(ctx, reference)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeFicheNotFound, "fiche not found", map[string]interface{}{
			"reference": reference,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get fiche", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"fiche": recordView(rec),
	})), nil
}

// handleListChapter handles the list_chapter tool invocation
func (s *Server) handleListChapter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	chapter := strings.TrimSpace(getStringDefault(args, "chapter", ""))
	if !isChapterCode(chapter) {
		return nil, newMCPError(ErrorCodeInvalidParams, "chapter must be two digits", map[string]interface{}{
			"param": "chapter",
			"value": chapter,
		})
	}

	ficheType := types.FicheType(getStringDefault(args, "type", ""))
	switch ficheType {
	case "", types.FicheKnowledge, types.FicheProcedure, types.FicheTechnique:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid type", map[string]interface{}{
			"param":   "type",
			"value":   ficheType,
			"allowed": []string{"knowledge", "procedure", "technique"},
		})
	}

	records, err := s.storage.ListByChapter(ctx, chapter)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list chapter", map[string]interface{}{
			"error": err.Error(),
		})
	}

	entries := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		if ficheType != "" && rec.FicheType != ficheType {
			continue
		}
		entries = append(entries, map[string]interface{}{
			"reference":   rec.Reference,
			"title":       parser.Title(rec.Content),
			"type":        rec.FicheType,
			"level":       rec.Level.String(),
			"update_date": rec.UpdateDate,
			"source":      rec.Source,
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"chapter":      chapter,
		"chapter_name": parser.ChapterName(chapter),
		"count":        len(entries),
		"fiches":       entries,
	})), nil
}

// handleAskQuestion handles the ask_question tool invocation
func (s *Server) handleAskQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	question := strings.TrimSpace(getStringDefault(args, "question", ""))
	if question == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}

	answer, err := s.assistant.Ask(ctx, question, getStringDefault(args, "category", ""))
	if err != nil {
		return nil, searchError(err)
	}

	data, err := json.MarshalIndent(answer, "", "  ")
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to encode answer", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"records":       status.Records,
			"fiches":        status.Fiches,
			"chunks":        status.Chunks,
			"sources":       status.Sources,
			"chapters":      status.Chapters,
			"by_category":   status.ByCategory,
			"index_size_mb": fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"vector_extension":     status.Health.VectorExtension,
		},
		"build_mode":         status.BuildMode,
		"ingest_in_progress": s.lock.Held(),
	}
	if run := status.LastRun; run != nil {
		response["last_run"] = map[string]interface{}{
			"run_id":      run.RunID,
			"documents":   run.Documents,
			"imported":    run.Imported,
			"errors":      run.Errors,
			"started_at":  run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
			"finished_at": run.FinishedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// searchError maps searcher failures to MCP errors
func searchError(err error) error {
	switch {
	case errors.Is(err, searcher.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
	case errors.Is(err, searcher.ErrSearchFailed):
		return newMCPError(ErrorCodeSearchUnavailable, "search unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		return newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// recordView projects a stored record the same way search results are projected
func recordView(rec *types.Record) types.FicheView {
	views := formatter.Format([]types.SearchResult{{
		ID:      rec.ID,
		Content: rec.Content,
		Source:  rec.Source,
		Record:  rec,
	}})
	return views[0]
}

func isChapterCode(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// validatePath checks that a path is absolute, exists and is readable
func validatePath(path string) (os.FileInfo, error) {
	if path == "" {
		return nil, ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return nil, ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrPathNotFound
	}
	if err != nil {
		return nil, ErrPathNotReadable
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, ErrPathNotReadable
	}
	_ = f.Close()

	return info, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter
func getStringSlice(args map[string]interface{}, key string) []string {
	switch raw := args[key].(type) {
	case []string:
		return raw
	case []interface{}:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Validation errors

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
)
