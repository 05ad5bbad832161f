package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/ficherag/internal/embedder"
	"github.com/dshills/ficherag/internal/storage"
	"github.com/dshills/ficherag/pkg/types"
)

// Result origins
const (
	OriginLexical = "lexical"
	OriginVector  = "vector"
)

const (
	// DefaultCacheSize is the number of responses kept by the response cache
	DefaultCacheSize = 1000
	// DefaultCacheTTL is the response lifetime unless WithCacheTTL overrides it
	DefaultCacheTTL = time.Hour
	// MaxLimit caps the number of results a caller may request
	MaxLimit = 100
)

// NoResultsMessage is returned with an empty response
const NoResultsMessage = "Aucune fiche ne correspond à la question."

var (
	// ErrEmptyQuery is returned when both the technical and the original query are blank
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrSearchFailed is returned when every pass that ran failed
	ErrSearchFailed = errors.New("all search passes failed")
)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	// TechnicalQuery is embedded for the vector pass (usually the reformulated question)
	TechnicalQuery string
	// OriginalQuery feeds the lexical pass and relevance gating
	OriginalQuery string
	// Category restricts results to sources whose name contains it, ignoring case
	Category string
	Limit    int
	UseCache bool
	CacheTTL time.Duration
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results        []types.SearchResult
	TotalResults   int
	Duration       time.Duration
	CacheHit       bool
	LexicalResults int
	VectorResults  int
	Empty          bool
	Message        string
}

// cacheEntry stores a cached search response with expiration
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher runs the lexical and vector passes and merges them into one ranking
type Searcher struct {
	storage  storage.Storage
	embedder embedder.Embedder
	policy   ScoringPolicy
	logger   *slog.Logger

	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
	cacheTTL time.Duration
}

// Option configures a Searcher
type Option func(*Searcher)

// WithPolicy replaces the default scoring policy
func WithPolicy(policy ScoringPolicy) Option {
	return func(s *Searcher) {
		s.policy = policy
	}
}

// WithLogger sets the logger used for pass failures
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		s.logger = logger
	}
}

// WithCacheSize sets the response cache capacity
func WithCacheSize(size int) Option {
	return func(s *Searcher) {
		if size <= 0 {
			return
		}
		if cache, err := lru.New[[32]byte, *cacheEntry](size); err == nil {
			s.cache = cache
		}
	}
}

// WithCacheTTL sets how long a cached response lives when the request sets
// no TTL of its own
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Searcher) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// NewSearcher creates a new searcher. A nil embedder disables the vector pass.
func NewSearcher(store storage.Storage, emb embedder.Embedder, opts ...Option) *Searcher {
	// lru.New only fails on a non-positive size
	cache, _ := lru.New[[32]byte, *cacheEntry](DefaultCacheSize)

	s := &Searcher{
		storage:  store,
		embedder: emb,
		policy:   DefaultScoringPolicy(),
		logger:   slog.Default().With("component", "searcher"),
		cache:    cache,
		cacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CacheTTL returns the lifetime given to cached responses by default
func (s *Searcher) CacheTTL() time.Duration {
	return s.cacheTTL
}

// Policy returns the scoring policy in use
func (s *Searcher) Policy() ScoringPolicy {
	return s.policy
}

// Search executes a hybrid search. Pass failures are logged and the search goes
// on with whatever the other pass produced.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	keywords := s.policy.Keywords(req.OriginalQuery)

	var (
		lexical, vector       []types.SearchResult
		lexicalErr, vectorErr error
		lexicalRan, vectorRan bool
	)

	g, gctx := errgroup.WithContext(ctx)
	if len(keywords) > 0 {
		lexicalRan = true
		g.Go(func() error {
			lexical, lexicalErr = s.lexicalPass(gctx, keywords, req.Category)
			return nil
		})
	}
	if s.embedder != nil {
		vectorRan = true
		g.Go(func() error {
			vector, vectorErr = s.vectorPass(gctx, req.TechnicalQuery, req.Category)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if lexicalErr != nil {
		s.logger.Warn("lexical pass failed, continuing with vector results", "error", lexicalErr)
	}
	if vectorErr != nil {
		s.logger.Warn("vector pass failed, continuing with lexical results", "error", vectorErr)
	}
	if (lexicalRan || vectorRan) &&
		(!lexicalRan || lexicalErr != nil) &&
		(!vectorRan || vectorErr != nil) {
		return nil, fmt.Errorf("%w: lexical=%v, vector=%v", ErrSearchFailed, lexicalErr, vectorErr)
	}

	results := Merge(lexical, vector)
	results = s.policy.Gate(results, keywords)
	results = FilterCategory(results, req.Category)
	results = SortAndTruncate(results, req.Limit)

	response := &SearchResponse{
		Results:        results,
		TotalResults:   len(results),
		LexicalResults: len(lexical),
		VectorResults:  len(vector),
	}
	if len(results) == 0 {
		response.Empty = true
		response.Message = NoResultsMessage
	}

	if req.UseCache {
		s.storeInCache(req, response)
	}

	response.Duration = time.Since(startTime)
	return response, nil
}

// lexicalPass asks the store for records containing the first filter keywords and
// scores each hit by how many of all keywords it contains.
func (s *Searcher) lexicalPass(ctx context.Context, keywords []string, category string) ([]types.SearchResult, error) {
	filter := keywords
	if n := s.policy.LexicalFilterWords; n > 0 && len(filter) > n {
		filter = filter[:n]
	}

	matches, err := s.storage.SubstringFilter(ctx, filter, category, s.policy.LexicalLimit)
	if err != nil {
		return nil, fmt.Errorf("substring filter failed: %w", err)
	}

	results := make([]types.SearchResult, 0, len(matches))
	for _, m := range matches {
		r := toResult(m, OriginLexical)
		r.Similarity = s.policy.LexicalScore(r.Content, keywords)
		results = append(results, r)
	}
	return results, nil
}

// vectorPass embeds the technical query and fetches its nearest neighbours
func (s *Searcher) vectorPass(ctx context.Context, query, category string) ([]types.SearchResult, error) {
	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	matches, err := s.storage.NearestNeighbors(ctx, embedding.Vector, s.policy.VectorMinSimilarity, s.policy.VectorLimit, category)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbour search failed: %w", err)
	}

	results := make([]types.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, toResult(m, OriginVector))
	}
	return results, nil
}

func toResult(m storage.Match, origin string) types.SearchResult {
	return types.SearchResult{
		ID:         m.Record.ID,
		Content:    m.Record.Content,
		Source:     m.Record.Source,
		Similarity: m.Similarity,
		Origin:     origin,
		Record:     m.Record,
	}
}

// Merge concatenates the passes in precedence order and keeps the first
// occurrence of every record id. A later duplicate is dropped even when it
// scores higher.
func Merge(passes ...[]types.SearchResult) []types.SearchResult {
	seen := make(map[int64]struct{})
	merged := make([]types.SearchResult, 0)
	for _, pass := range passes {
		for _, r := range pass {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			merged = append(merged, r)
		}
	}
	return merged
}

// FilterCategory drops results whose source name does not contain category
func FilterCategory(results []types.SearchResult, category string) []types.SearchResult {
	key := storage.SourceKey(category)
	if key == "" {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if strings.Contains(storage.SourceKey(r.Source), key) {
			kept = append(kept, r)
		}
	}
	return kept
}

// SortAndTruncate orders results by similarity, highest first, and keeps at most
// limit of them. Ties keep merge order.
func SortAndTruncate(results []types.SearchResult, limit int) []types.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.TechnicalQuery = strings.TrimSpace(req.TechnicalQuery)
	req.OriginalQuery = strings.TrimSpace(req.OriginalQuery)

	if req.TechnicalQuery == "" && req.OriginalQuery == "" {
		return ErrEmptyQuery
	}
	if req.TechnicalQuery == "" {
		req.TechnicalQuery = req.OriginalQuery
	}
	if req.OriginalQuery == "" {
		req.OriginalQuery = req.TechnicalQuery
	}

	if req.Limit <= 0 {
		req.Limit = s.policy.TopK
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.CacheTTL == 0 {
		req.CacheTTL = s.cacheTTL
	}
	return nil
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. Call it after the store changes.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, result := range src.Results {
		dst.Results[i] = result
		// Record holds no maps; copying the struct detaches it from the cache.
		// The embedding slice is shared and never written after storage.
		if result.Record != nil {
			rec := *result.Record
			dst.Results[i].Record = &rec
		}
	}
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.TechnicalQuery)
	data.WriteString("|")
	data.WriteString(req.OriginalQuery)
	data.WriteString("|")
	data.WriteString(strings.ToLower(req.Category))
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.Limit))
	return sha256.Sum256([]byte(data.String()))
}
