// Package ingest coordinates the pipeline that fills the store from source
// documents.
//
// # Basic Usage
//
//	paths, _ := ingest.Discover("./referentiels", nil)
//	p, err := ingest.NewPipeline(store, emb)
//	defer p.Release()
//
//	report, err := p.Ingest(ctx, ingest.DocumentsFromPaths(paths), ingest.Options{
//	    CategoryFilter: "PSE",
//	})
//	fmt.Printf("%d imported, %d errors\n", report.Imported, report.Errors)
//
// # Pipeline
//
// For each document:
//
//  1. Extract text through the Extractor unless the document carries it
//  2. Documents whose name contains a structured marker ("PSE" by default)
//     and whose text holds fiche headers are split into fiches; every other
//     document is cut into overlapping chunks
//  3. Each item is embedded and written to the store, one at a time
//
// A failed item is logged, counted and skipped. After a success the pipeline
// pauses for the pace delay, after a failure for the longer failure backoff.
// There is no transaction across items: an interrupted run leaves what was
// written so far.
//
// # Concurrency
//
// Ingestion is sequential by default. WithWorkers processes several
// documents at once on an ants pool; a weighted semaphore bounds concurrent
// embedding calls and WithRateLimit paces them. Items of one document are
// still written in order.
//
// IndexLock lets a long-running server reject a second run while one is
// in progress.
package ingest
