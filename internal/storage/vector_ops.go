package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dshills/ficherag/internal/textnorm"
)

// nearestNeighbors returns records whose cosine similarity to vector is at
// least minSimilarity, best first, ties broken by id.
func nearestNeighbors(ctx context.Context, db *sql.DB, vector []float32, minSimilarity float64, maxCount int, category string) ([]Match, error) {
	if maxCount <= 0 || len(vector) == 0 {
		return []Match{}, nil
	}
	if VectorExtensionAvailable {
		return nearestInSQL(ctx, db, vector, minSimilarity, maxCount, category)
	}
	return nearestInGo(ctx, db, vector, minSimilarity, maxCount, category)
}

// nearestInSQL lets sqlite-vec rank candidates
func nearestInSQL(ctx context.Context, db *sql.DB, vector []float32, minSimilarity float64, maxCount int, category string) ([]Match, error) {
	blob := serializeVector(vector)

	// vec_distance_cosine returns a distance, lower is better
	query := `
		SELECT ` + recordColumns + `, 1.0 - vec_distance_cosine(embedding, ?) AS similarity
		FROM records
		WHERE dimension = ?
	`
	args := []interface{}{blob, len(vector)}
	query, args = applyCategoryFilter(query, args, category)

	query += " AND (1.0 - vec_distance_cosine(embedding, ?)) >= ?"
	args = append(args, blob, minSimilarity)

	query += " ORDER BY similarity DESC, id ASC LIMIT ?"
	args = append(args, maxCount)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]Match, 0, maxCount)
	for rows.Next() {
		var similarity float64
		rec, err := scanRecord(rows, &similarity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		matches = append(matches, Match{Record: rec, Similarity: similarity})
	}
	return matches, rows.Err()
}

// nearestInGo scores every candidate in Go. Used by purego builds.
func nearestInGo(ctx context.Context, db *sql.DB, vector []float32, minSimilarity float64, maxCount int, category string) ([]Match, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE dimension = ?`
	args := []interface{}{len(vector)}
	query, args = applyCategoryFilter(query, args, category)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]Match, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		similarity := cosineSimilarity(vector, rec.Embedding)
		if similarity < minSimilarity {
			continue
		}
		matches = append(matches, Match{Record: rec, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortMatches(matches)
	if len(matches) > maxCount {
		matches = matches[:maxCount]
	}
	return matches, nil
}

// substringFilter returns records whose folded content contains every term.
// Matching ignores case and accents but is not tokenized: "plaie" matches "plaies".
func substringFilter(ctx context.Context, db *sql.DB, terms []string, category string, limit int) ([]Match, error) {
	folded := make([]string, 0, len(terms))
	for _, term := range terms {
		if f := strings.TrimSpace(textnorm.Fold(term)); f != "" {
			folded = append(folded, f)
		}
	}
	if len(folded) == 0 {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		return []Match{}, nil
	}

	query := `SELECT ` + recordColumns + ` FROM records WHERE 1 = 1`
	args := make([]interface{}, 0, len(folded)+2)
	for _, term := range folded {
		query += " AND instr(search_text, ?) > 0"
		args = append(args, term)
	}
	query, args = applyCategoryFilter(query, args, category)
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute substring search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]Match, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{Record: rec})
	}
	return matches, rows.Err()
}

// SourceKey is the case-folded form category filters compare against.
// The store and the search engine must fold the same way.
func SourceKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// applyCategoryFilter restricts a query to sources containing category, ignoring case
func applyCategoryFilter(query string, args []interface{}, category string) (string, []interface{}) {
	key := SourceKey(category)
	if key == "" {
		return query, args
	}
	query += " AND instr(source_key, ?) > 0"
	return query, append(args, key)
}

// Vectors are stored as little-endian float32 blobs, the layout sqlite-vec reads.
func serializeVector(vector []float32) []byte {
	blob := make([]byte, 0, len(vector)*4)
	for _, v := range vector {
		blob = binary.LittleEndian.AppendUint32(blob, math.Float32bits(v))
	}
	return blob
}

func deserializeVector(blob []byte) []float32 {
	out := make([]float32, 0, len(blob)/4)
	for len(blob) >= 4 {
		out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(blob)))
		blob = blob[4:]
	}
	return out
}

// cosineSimilarity is 0 for mismatched lengths or a zero vector.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var ab, aa, bb float64
	for i, x := range a {
		y := float64(b[i])
		ab += float64(x) * y
		aa += float64(x) * float64(x)
		bb += y * y
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return ab / math.Sqrt(aa*bb)
}

// sortMatches orders by similarity descending, then id ascending
func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})
}
