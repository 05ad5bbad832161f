package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/ficherag/internal/textnorm"
	"github.com/dshills/ficherag/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrEmptyQuery is returned when a substring query has no terms
	ErrEmptyQuery = errors.New("empty search query")
	// ErrEmptyEmbedding is returned when a record is written without a vector
	ErrEmptyEmbedding = errors.New("record has no embedding")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer; this also keeps :memory: databases on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

const recordColumns = `id, content, source, category, embedding, chapter, chapter_name,
	fiche_type, fiche_type_name, fiche_ref, level, update_date`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord reads recordColumns, followed by any extra destinations
func scanRecord(row rowScanner, extra ...interface{}) (*types.Record, error) {
	var rec types.Record
	var category, ficheType string
	var level int
	var blob []byte

	dest := []interface{}{
		&rec.ID, &rec.Content, &rec.Source, &category, &blob, &rec.Chapter, &rec.ChapterName,
		&ficheType, &rec.FicheTypeName, &rec.Reference, &level, &rec.UpdateDate,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	rec.Category = types.Category(category)
	rec.FicheType = types.FicheType(ficheType)
	rec.Level = types.Level(level)
	rec.Embedding = deserializeVector(blob)
	return &rec, nil
}

// Record operations

func (s *SQLiteStorage) InsertRecord(ctx context.Context, rec *types.Record) (int64, error) {
	if rec.Content == "" {
		return 0, types.ErrEmptyContent
	}
	if len(rec.Embedding) == 0 {
		return 0, ErrEmptyEmbedding
	}

	query := `
		INSERT INTO records (
			content, search_text, source, source_key, category, embedding, dimension,
			chapter, chapter_name, fiche_type, fiche_type_name, fiche_ref, level, update_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.Content, textnorm.Fold(rec.Content), rec.Source, SourceKey(rec.Source), string(rec.Category),
		serializeVector(rec.Embedding), len(rec.Embedding),
		rec.Chapter, rec.ChapterName, string(rec.FicheType), rec.FicheTypeName,
		rec.Reference, int(rec.Level), rec.UpdateDate, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	rec.ID = id
	return id, nil
}

func (s *SQLiteStorage) GetRecord(ctx context.Context, id int64) (*types.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = ?`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByReference returns the first stored fiche with the given reference
func (s *SQLiteStorage) GetByReference(ctx context.Context, reference string) (*types.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE fiche_ref = ? ORDER BY id LIMIT 1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, reference))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByChapter returns the fiches of a chapter ordered by reference
func (s *SQLiteStorage) ListByChapter(ctx context.Context, chapter string) ([]*types.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM records
		WHERE chapter = ? AND fiche_ref != ''
		ORDER BY fiche_ref, id`
	return s.listRecords(ctx, query, chapter)
}

// ListByType returns the fiches of a type ordered by reference
func (s *SQLiteStorage) ListByType(ctx context.Context, ficheType types.FicheType) ([]*types.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM records
		WHERE fiche_type = ? AND fiche_ref != ''
		ORDER BY fiche_ref, id`
	return s.listRecords(ctx, query, string(ficheType))
}

func (s *SQLiteStorage) listRecords(ctx context.Context, query string, args ...interface{}) ([]*types.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := make([]*types.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Reset deletes every stored record and returns how many were removed
func (s *SQLiteStorage) Reset(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset records: %w", err)
	}
	return result.RowsAffected()
}

// Search operations

func (s *SQLiteStorage) NearestNeighbors(ctx context.Context, vector []float32, minSimilarity float64, maxCount int, category string) ([]Match, error) {
	return nearestNeighbors(ctx, s.db, vector, minSimilarity, maxCount, category)
}

func (s *SQLiteStorage) SubstringFilter(ctx context.Context, terms []string, category string, limit int) ([]Match, error) {
	return substringFilter(ctx, s.db, terms, category, limit)
}

// Ingest run operations

func (s *SQLiteStorage) CreateIngestRun(ctx context.Context, run *IngestRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (run_id, category_filter, started_at)
		VALUES (?, ?, ?)
	`, run.RunID, run.CategoryFilter, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create ingest run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id
	return nil
}

func (s *SQLiteStorage) FinishIngestRun(ctx context.Context, run *IngestRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs
		SET documents = ?, imported = ?, errors = ?, finished_at = ?
		WHERE run_id = ?
	`, run.Documents, run.Imported, run.Errors, run.FinishedAt, run.RunID)
	if err != nil {
		return fmt.Errorf("failed to finish ingest run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) lastIngestRun(ctx context.Context) (*IngestRun, error) {
	var run IngestRun
	var finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, category_filter, documents, imported, errors, started_at, finished_at
		FROM ingest_runs
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&run.ID, &run.RunID, &run.CategoryFilter, &run.Documents, &run.Imported,
		&run.Errors, &run.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		ByCategory: make(map[string]int),
		BuildMode:  BuildMode,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN fiche_ref != '' THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT source),
			COUNT(DISTINCT CASE WHEN chapter != '' THEN chapter END)
		FROM records
	`).Scan(&status.Records, &status.Fiches, &status.Sources, &status.Chapters)
	if err != nil {
		return nil, err
	}
	status.Chunks = status.Records - status.Fiches

	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM records GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		status.ByCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	run, err := s.lastIngestRun(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	status.LastRun = run

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.Records > 0,
		VectorExtension:     VectorExtensionAvailable,
	}

	return status, nil
}
