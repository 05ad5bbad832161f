package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/ficherag/internal/assistant"
	"github.com/dshills/ficherag/internal/ingest"
	"github.com/dshills/ficherag/internal/searcher"
	"github.com/dshills/ficherag/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "ficherag"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

var ErrMissingDependency = errors.New("mcp server dependency is missing")

// Server exposes ingestion, search and question answering as MCP tools
type Server struct {
	mcp       *server.MCPServer
	storage   storage.Storage
	pipeline  *ingest.Pipeline
	searcher  *searcher.Searcher
	assistant *assistant.Assistant
	lock      ingest.IndexLock
	include   []string
	logger    *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithInclude sets the glob patterns used when ingest_documents is given a directory
func WithInclude(patterns []string) Option {
	return func(s *Server) {
		if len(patterns) > 0 {
			s.include = patterns
		}
	}
}

// NewServer creates a server over already built components. The caller owns
// their lifetime; Serve does not close the store.
func NewServer(store storage.Storage, pipeline *ingest.Pipeline, srch *searcher.Searcher, asst *assistant.Assistant, opts ...Option) (*Server, error) {
	if store == nil || pipeline == nil || srch == nil || asst == nil {
		return nil, ErrMissingDependency
	}

	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion),
		storage:   store,
		pipeline:  pipeline,
		searcher:  srch,
		assistant: asst,
		include:   ingest.DefaultInclude,
		logger:    slog.Default().With("component", "mcp"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("serving MCP on stdio", "name", ServerName, "version", ServerVersion)
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(ingestDocumentsTool(), s.handleIngestDocuments)
	s.mcp.AddTool(searchFichesTool(), s.handleSearchFiches)
	s.mcp.AddTool(getFicheTool(), s.handleGetFiche)
	s.mcp.AddTool(listChapterTool(), s.handleListChapter)
	s.mcp.AddTool(askQuestionTool(), s.handleAskQuestion)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
