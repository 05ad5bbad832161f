// Package storage provides SQLite-based persistence for fiches and chunks.
//
// Every stored unit is a row of the records table: its content, the
// accent-folded search_text used for substring matching, the source document
// name, the embedding as a little-endian float32 blob, and the fiche metadata
// (chapter, type, reference, level, update date), empty for chunks.
//
// # Queries
//
// NearestNeighbors ranks records by cosine similarity to a query vector.
// With the sqlite_vec build tag the distance is computed in SQL with
// vec_distance_cosine; otherwise candidates are scored in Go.
//
// SubstringFilter returns records whose folded content contains every given
// term. This is substring matching, not tokenized full-text search.
//
// Both accept a category filter, a case-insensitive substring of the source
// name ("PSC" keeps "Referentiel_PSC1.pdf").
//
// # Build Modes
//
//	CGO_ENABLED=0 go build -tags purego ./...          # modernc.org/sqlite
//	CGO_ENABLED=1 go build -tags sqlite_vec ./...      # mattn/go-sqlite3 + sqlite-vec
//
// # Migrations
//
// Schema versions are tracked with semver in schema_version and applied in
// order by ApplyMigrations when the store is opened.
package storage
