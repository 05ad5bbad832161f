package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dshills/ficherag/internal/chunker"
	"github.com/dshills/ficherag/internal/embedder"
	"github.com/dshills/ficherag/internal/parser"
	"github.com/dshills/ficherag/internal/retry"
	"github.com/dshills/ficherag/internal/storage"
	"github.com/dshills/ficherag/pkg/types"
)

const (
	// DefaultPaceDelay is the pause after each successful write
	DefaultPaceDelay = 200 * time.Millisecond
	// DefaultFailureBackoff is the pause after each failed item
	DefaultFailureBackoff = 2 * time.Second
)

var (
	ErrStorageRequired  = errors.New("storage is required")
	ErrEmbedderRequired = errors.New("embedder is required")
)

// Pipeline drives parser or chunker, embedder and store over a batch of
// source documents. Items are written one at a time; a failed item is
// counted and skipped.
type Pipeline struct {
	storage   storage.Storage
	embedder  embedder.Embedder
	parser    *parser.Parser
	chunker   *chunker.Chunker
	extractor Extractor
	markers   []string
	policy    retry.Policy
	logger    *slog.Logger

	paceDelay      time.Duration
	failureBackoff time.Duration

	// Parallel mode only
	pool    *ants.Pool
	gate    *semaphore.Weighted
	limiter *rate.Limiter
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithParser replaces the default fiche parser
func WithParser(ps *parser.Parser) Option {
	return func(p *Pipeline) error {
		p.parser = ps
		return nil
	}
}

// WithChunker replaces the default fallback chunker
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		p.chunker = c
		return nil
	}
}

// WithExtractor sets how documents without inline text are read
func WithExtractor(e Extractor) Option {
	return func(p *Pipeline) error {
		p.extractor = e
		return nil
	}
}

// WithStructuredMarkers sets the name substrings that select the fiche parser
func WithStructuredMarkers(markers []string) Option {
	return func(p *Pipeline) error {
		p.markers = markers
		return nil
	}
}

// WithRetryPolicy sets the policy applied to each store write
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Pipeline) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		p.policy = policy
		return nil
	}
}

// WithPacing sets the pause after each success and after each failure
func WithPacing(pace, backoff time.Duration) Option {
	return func(p *Pipeline) error {
		if pace < 0 || backoff < 0 {
			return fmt.Errorf("pacing delays must be >= 0")
		}
		p.paceDelay = pace
		p.failureBackoff = backoff
		return nil
	}
}

// WithWorkers processes up to n documents at once. With n <= 1 ingestion is
// sequential. maxInFlight bounds concurrent embedding calls across workers
// and defaults to n.
func WithWorkers(n, maxInFlight int) Option {
	return func(p *Pipeline) error {
		if p.pool != nil {
			p.pool.Release()
			p.pool = nil
			p.gate = nil
		}
		if n <= 1 {
			return nil
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		if maxInFlight <= 0 {
			maxInFlight = n
		}
		p.pool = pool
		p.gate = semaphore.NewWeighted(int64(maxInFlight))
		return nil
	}
}

// WithRateLimit caps embedding calls per second. Zero disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(p *Pipeline) error {
		if perSecond <= 0 {
			p.limiter = nil
			return nil
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(store storage.Storage, emb embedder.Embedder, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStorageRequired
	}
	if emb == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Pipeline{
		storage:        store,
		embedder:       emb,
		parser:         parser.New(),
		chunker:        chunker.New(),
		extractor:      PlainTextExtractor{},
		markers:        DefaultStructuredMarkers,
		policy:         retry.DefaultPolicy(),
		logger:         slog.Default().With("component", "ingest"),
		paceDelay:      DefaultPaceDelay,
		failureBackoff: DefaultFailureBackoff,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	return p, nil
}

// Release frees the worker pool
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
		p.pool = nil
	}
}

// Options holds per-run parameters
type Options struct {
	// CategoryFilter keeps only documents whose name contains it, ignoring case
	CategoryFilter string
	// Progress is called after each document; calls are serialized
	Progress func(Event)
}

// Event reports the outcome of one document
type Event struct {
	RunID     string
	Document  string
	Done      int
	Total     int
	Items     int
	Imported  int
	Errors    int
	Extracted bool
}

// Report summarizes an ingestion run
type Report struct {
	RunID         string
	Documents     int
	Fiches        int
	Chunks        int
	Imported      int
	Errors        int
	ErrorMessages []string
	Duration      time.Duration
}

// run carries the mutable state of one Ingest call
type run struct {
	mu       sync.Mutex
	report   *Report
	done     int
	progress func(Event)
}

func (r *run) fail(msg string) {
	r.mu.Lock()
	r.report.Errors++
	r.report.ErrorMessages = append(r.report.ErrorMessages, msg)
	r.mu.Unlock()
}

func (r *run) finish(doc string, items, imported, errs int, extracted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	if r.progress != nil {
		r.progress(Event{
			RunID:     r.report.RunID,
			Document:  doc,
			Done:      r.done,
			Total:     r.report.Documents,
			Items:     items,
			Imported:  imported,
			Errors:    errs,
			Extracted: extracted,
		})
	}
}

// Ingest processes the documents and returns the counts. Per-item failures
// never abort the run; the returned error is non-nil only when ctx ends early,
// in which case the partial report is returned alongside it.
func (p *Pipeline) Ingest(ctx context.Context, docs []SourceDocument, opts Options) (*Report, error) {
	startTime := time.Now()

	selected := filterDocuments(docs, opts.CategoryFilter)
	r := &run{
		report: &Report{
			RunID:         uuid.NewString(),
			Documents:     len(selected),
			ErrorMessages: make([]string, 0),
		},
		progress: opts.Progress,
	}

	ingestRun := &storage.IngestRun{
		RunID:          r.report.RunID,
		CategoryFilter: opts.CategoryFilter,
		Documents:      len(selected),
		StartedAt:      startTime,
	}
	if err := p.storage.CreateIngestRun(ctx, ingestRun); err != nil {
		p.logger.Warn("failed to record ingest run", "run_id", r.report.RunID, "error", err)
		ingestRun = nil
	}

	p.logger.Info("ingestion started", "run_id", r.report.RunID, "documents", len(selected),
		"filter", opts.CategoryFilter, "parallel", p.pool != nil)

	if p.pool == nil {
		for _, doc := range selected {
			if ctx.Err() != nil {
				break
			}
			p.processDocument(ctx, doc, r)
		}
	} else {
		var wg sync.WaitGroup
		for _, doc := range selected {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			if err := p.pool.Submit(func() {
				defer wg.Done()
				p.processDocument(ctx, doc, r)
			}); err != nil {
				wg.Done()
				r.fail(fmt.Sprintf("%s: %v", doc.Name, err))
				r.finish(doc.Name, 0, 0, 1, false)
			}
		}
		wg.Wait()
	}

	r.report.Duration = time.Since(startTime)

	if ingestRun != nil {
		ingestRun.Imported = r.report.Imported
		ingestRun.Errors = r.report.Errors
		ingestRun.FinishedAt = time.Now()
		// The run must be closed even when ctx was cancelled
		if err := p.storage.FinishIngestRun(context.WithoutCancel(ctx), ingestRun); err != nil {
			p.logger.Warn("failed to close ingest run", "run_id", r.report.RunID, "error", err)
		}
	}

	p.logger.Info("ingestion finished", "run_id", r.report.RunID, "imported", r.report.Imported,
		"errors", r.report.Errors, "duration", r.report.Duration)

	if err := ctx.Err(); err != nil {
		return r.report, err
	}
	return r.report, nil
}

func filterDocuments(docs []SourceDocument, filter string) []SourceDocument {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return docs
	}
	kept := make([]SourceDocument, 0, len(docs))
	for _, d := range docs {
		if strings.Contains(strings.ToLower(d.Name), filter) {
			kept = append(kept, d)
		}
	}
	return kept
}

// processDocument extracts, splits and writes one document
func (p *Pipeline) processDocument(ctx context.Context, doc SourceDocument, r *run) {
	text := doc.Text
	if text == "" && doc.Path != "" {
		extracted, err := p.extractor.Extract(ctx, doc.Path)
		if err != nil {
			p.logger.Warn("extraction failed", "document", doc.Name, "error", err)
			r.fail(fmt.Sprintf("%s: extraction failed: %v", doc.Name, err))
			r.finish(doc.Name, 0, 0, 1, false)
			return
		}
		text = extracted
	}

	category := doc.Category
	if category == "" {
		category = CategoryFromName(doc.Name)
	}

	records, fiches, chunks := p.split(doc.Name, text, category)
	r.mu.Lock()
	r.report.Fiches += fiches
	r.report.Chunks += chunks
	r.mu.Unlock()

	imported, errs := 0, 0
	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if err := p.writeItem(ctx, rec); err != nil {
			errs++
			label := rec.Reference
			if label == "" {
				label = fmt.Sprintf("chunk %d", i)
			}
			p.logger.Warn("item failed", "document", doc.Name, "item", label, "error", err)
			r.fail(fmt.Sprintf("%s [%s]: %v", doc.Name, label, err))
			_ = sleep(ctx, p.failureBackoff)
			continue
		}
		imported++
		r.mu.Lock()
		r.report.Imported++
		r.mu.Unlock()
		_ = sleep(ctx, p.paceDelay)
	}

	p.logger.Debug("document ingested", "document", doc.Name, "fiches", fiches, "chunks", chunks,
		"imported", imported, "errors", errs)
	r.finish(doc.Name, len(records), imported, errs, true)
}

// split turns a document into records: fiches for structured sources that
// carry headers, overlapping chunks otherwise
func (p *Pipeline) split(name, text string, category types.Category) ([]*types.Record, int, int) {
	if IsStructuredSource(name, p.markers) && parser.HasMarkers(text) {
		result := p.parser.Parse(name, text)
		if len(result.Fiches) > 0 {
			records := make([]*types.Record, 0, len(result.Fiches))
			for i := range result.Fiches {
				records = append(records, types.RecordFromFiche(&result.Fiches[i], category))
			}
			return records, len(records), 0
		}
	}

	chunks := p.chunker.Split(name, parser.Normalize(parser.Clean(text)))
	records := make([]*types.Record, 0, len(chunks))
	for i := range chunks {
		records = append(records, types.RecordFromChunk(&chunks[i], category))
	}
	return records, 0, len(records)
}

// writeItem embeds a record and stores it
func (p *Pipeline) writeItem(ctx context.Context, rec *types.Record) error {
	if p.gate != nil {
		if err := p.gate.Acquire(ctx, 1); err != nil {
			return err
		}
		defer p.gate.Release(1)
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	emb, err := p.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: rec.Content})
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	rec.Embedding = emb.Vector

	_, err = retry.Do(ctx, p.policy, func(ctx context.Context) (int64, error) {
		id, err := p.storage.InsertRecord(ctx, rec)
		if errors.Is(err, types.ErrEmptyContent) || errors.Is(err, storage.ErrEmptyEmbedding) {
			return 0, retry.Permanent(err)
		}
		return id, err
	})
	if err != nil {
		return fmt.Errorf("store write failed: %w", err)
	}
	return nil
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
