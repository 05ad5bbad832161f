// Package parser splits structured first-aid references into fiches.
//
// A fiche starts with a bracketed header giving its chapter, type code,
// sequence number and last update:
//
//	[05PR08 / 12-2022] PSE① Hémorragie externe
//
// Parsing is done in two passes over the cleaned text. The first pass collects
// every header offset, the second slices the text between consecutive
// headers. Text before the first header is kept as the preamble, so the
// preamble plus the fiche spans always reassemble the cleaned input.
//
// # Basic Usage
//
//	p := parser.New(parser.WithLogger(logger))
//	result := p.Parse("PSE_referentiel.txt", text)
//	for _, f := range result.Fiches {
//	    fmt.Printf("%s %s (%s)\n", f.Reference, f.Title, f.ChapterName)
//	}
//
// Structural oddities (duplicate references, near-empty bodies) are returned
// as Anomalies and logged, never rejected.
//
// ParseHeaderLine applies the same header rule to a single line. The result
// formatter and the relevance gate use it to recover metadata from stored
// content.
package parser
