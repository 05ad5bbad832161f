// Package types provides shared type definitions for ficherag.
//
// A structured first-aid reference is split into Fiches, each identified by a
// bracketed header such as "[05PR08 / 12-2022]". Documents without that
// structure are split into overlapping Chunks. Both become Records once
// embedded and stored:
//
//	rec := types.RecordFromFiche(fiche, types.CategoryPSE)
//
// Search returns SearchResults ordered by similarity in [0, 1]. The formatter
// turns them into FicheViews for display.
package types
