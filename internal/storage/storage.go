package storage

import (
	"context"
	"time"

	"github.com/dshills/ficherag/pkg/types"
)

// Storage persists fiches and chunks with their embeddings and answers the
// two retrieval queries the search engine needs.
type Storage interface {
	// Record operations
	InsertRecord(ctx context.Context, rec *types.Record) (int64, error)
	GetRecord(ctx context.Context, id int64) (*types.Record, error)
	GetByReference(ctx context.Context, reference string) (*types.Record, error)
	ListByChapter(ctx context.Context, chapter string) ([]*types.Record, error)
	ListByType(ctx context.Context, ficheType types.FicheType) ([]*types.Record, error)
	Reset(ctx context.Context) (int64, error)

	// Search operations
	NearestNeighbors(ctx context.Context, vector []float32, minSimilarity float64, maxCount int, category string) ([]Match, error)
	SubstringFilter(ctx context.Context, terms []string, category string, limit int) ([]Match, error)

	// Ingest run bookkeeping
	CreateIngestRun(ctx context.Context, run *IngestRun) error
	FinishIngestRun(ctx context.Context, run *IngestRun) error

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
}

// Match is a record returned by a search query. Similarity is the cosine
// similarity for nearest-neighbor queries and zero for substring queries.
type Match struct {
	Record     *types.Record
	Similarity float64
}

// IngestRun records one ingestion batch
type IngestRun struct {
	ID             int64
	RunID          string
	CategoryFilter string
	Documents      int
	Imported       int
	Errors         int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Status contains statistics about the stored corpus
type Status struct {
	Records     int
	Fiches      int
	Chunks      int
	Sources     int
	Chapters    int
	ByCategory  map[string]int
	LastRun     *IngestRun
	IndexSizeMB float64
	BuildMode   string
	Health      HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	VectorExtension     bool
}
