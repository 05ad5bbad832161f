// Package searcher implements hybrid fiche retrieval combining an exact
// lexical pass with vector similarity.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, emb)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    TechnicalQuery: "hémorragie externe compression directe garrot",
//	    OriginalQuery:  "Que faire devant une hémorragie ?",
//	    Category:       "PSE",
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%.2f %s (%s)\n", r.Similarity, parser.FirstLine(r.Content), r.Origin)
//	}
//
// # Ranking
//
// Search runs two passes concurrently:
//
//   - Lexical: keywords of the original question (folded, stop words removed)
//     are matched as substrings. The first LexicalFilterWords keywords must all
//     appear. Hits score LexicalBase plus a bonus per keyword found, capped at
//     LexicalCeiling.
//   - Vector: the technical query is embedded and the store returns its
//     nearest neighbours above VectorMinSimilarity.
//
// Lexical hits are merged first. When both passes return the same record the
// first occurrence wins, whatever the scores. Relevance gating then multiplies
// by GatePenalty the score of any fiche whose title shares no long keyword with
// the question, unless it already scores GateBypassSimilarity or more. Results
// are filtered by category, sorted by score and truncated to TopK.
//
// All constants live in ScoringPolicy. Use WithPolicy to tune them.
//
// # Failures
//
// A failing pass is logged and the other pass carries the search. Only when
// every pass that ran fails does Search return ErrSearchFailed. A search that
// finds nothing returns a response with Empty set and NoResultsMessage.
//
// # Caching
//
// With UseCache set, responses are kept in an LRU cache for CacheTTL (one hour
// by default). Call InvalidateCache after ingestion or reset.
package searcher
